package models

// Dataset splits an image can be assigned to
const (
	SplitTrain = "train"
	SplitValid = "valid"
)

// WorkItem represents an image waiting to be labeled
type WorkItem struct {
	ImagePath string
	ImageNum  int
	Total     int
}

// Box is a bounding box normalized to [0,1] with a top-left origin
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Detection is one object the oracle found in an image
type Detection struct {
	Class      string  `json:"class"`
	ClassID    int     `json:"class_id"`
	Prompt     string  `json:"prompt"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// LabelResult represents the annotations produced for one image
type LabelResult struct {
	Image      string      `json:"image"`
	Split      string      `json:"split"`
	Width      int         `json:"width"`
	Height     int         `json:"height"`
	Detections []Detection `json:"detections"`
}

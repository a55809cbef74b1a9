package transfer

// Service endpoints, relative to the configured origin.
const (
	UploadPath  = "/api/colorize"
	HistoryPath = "/api/history"

	// FormField is the multipart field carrying the image.
	FormField = "image"
)

// Color is one dominant color the service extracted from the upload.
type Color struct {
	Name string `json:"name"`
	RGB  []int  `json:"rgb"`
	Hex  string `json:"hex"`
}

// Result is the service's answer to a successful upload. ResultURL is always
// absolute (or origin-relative when the origin is empty) once returned by
// Client.Colorize.
type Result struct {
	ID               string  `json:"id"`
	OriginalFilename string  `json:"originalFilename"`
	ResultURL        string  `json:"resultUrl"`
	CreatedAt        string  `json:"createdAt"`
	Colors           []Color `json:"colors,omitempty"`
}

// HistoryEntry is one past colorization, in server order.
type HistoryEntry struct {
	ID        string `json:"id" yaml:"id"`
	Filename  string `json:"filename" yaml:"filename"`
	CreatedAt string `json:"createdAt" yaml:"createdAt"`
	ResultURL string `json:"resultUrl" yaml:"resultUrl"`
}

// historyWire accepts both field spellings the service has used.
type historyWire struct {
	ID               string `json:"id"`
	Filename         string `json:"filename"`
	OriginalFilename string `json:"originalFilename"`
	CreatedAt        string `json:"createdAt"`
	ResultURL        string `json:"resultUrl"`
}

// ProgressFunc receives integer upload percentages in [0,100].
type ProgressFunc func(percent int)

package batch

// Event is one record of the batch progress stream. The server publishes
// events to the message queue as msgpack and the HTTP handler re-frames
// them as `data: <json>` lines; the client decodes the JSON form.
type Event struct {
	Type         string   `json:"type" msgpack:"type"`
	Message      string   `json:"message,omitempty" msgpack:"message,omitempty"`
	Folder       string   `json:"folder,omitempty" msgpack:"folder,omitempty"`
	File         string   `json:"file,omitempty" msgpack:"file,omitempty"`
	FolderIndex  int      `json:"folder_index,omitempty" msgpack:"folder_index,omitempty"`
	TotalFolders int      `json:"total_folders,omitempty" msgpack:"total_folders,omitempty"`
	FileIndex    int      `json:"file_index,omitempty" msgpack:"file_index,omitempty"`
	TotalFiles   int      `json:"total_files,omitempty" msgpack:"total_files,omitempty"`
	Error        string   `json:"error,omitempty" msgpack:"error,omitempty"`
	Summary      *Summary `json:"summary,omitempty" msgpack:"summary,omitempty"`
}

const (
	EventStart          = "start"
	EventFolderStart    = "folder_start"
	EventFileStart      = "file_start"
	EventProcessing     = "processing"
	EventSaving         = "saving"
	EventFileComplete   = "file_complete"
	EventFileError      = "file_error"
	EventDesignStart    = "design_start"
	EventDesignComplete = "design_complete"
	EventFolderComplete = "folder_complete"
	EventFolderError    = "folder_error"
	EventComplete       = "complete"
)

// Summary is the terminal payload carried by the `complete` event. It is
// the only record the client treats as authoritative; everything before it
// is display-only.
type Summary struct {
	FoldersProcessed int            `json:"folders_processed" msgpack:"folders_processed"`
	FilesProcessed   int            `json:"files_processed" msgpack:"files_processed"`
	ModelCounts      map[string]int `json:"model_counts,omitempty" msgpack:"model_counts,omitempty"`
	CostEstimate     float64        `json:"cost_estimate" msgpack:"cost_estimate"`
	Folders          []FolderResult `json:"folders" msgpack:"folders"`
	Errors           []string       `json:"errors,omitempty" msgpack:"errors,omitempty"`
}

type FolderResult struct {
	Name           string   `json:"name" msgpack:"name"`
	Path           string   `json:"path" msgpack:"path"`
	FilesProcessed int      `json:"files_processed" msgpack:"files_processed"`
	DesignCreated  bool     `json:"design_created" msgpack:"design_created"`
	Errors         []string `json:"errors,omitempty" msgpack:"errors,omitempty"`
}

// Job describes one batch run: every image under BasePath is processed
// with a single model/template configuration.
type Job struct {
	BasePath     string
	Model        string
	APIKey       string
	Token        string
	Width        int
	Height       int
	OutputFolder string
}

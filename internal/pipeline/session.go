package pipeline

import (
	"context"
	"path"
	"regexp"
	"strings"

	"github.com/clearcut-studio/studio-server/internal/client"
	"github.com/clearcut-studio/studio-server/internal/providers"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

type State int

const (
	StateIdle State = iota
	StateSelected
	StateProcessing
	StateProcessed
	StateBackgroundPlacing
	StateBackgroundPlaced
	StateSaving
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSelected:
		return "selected"
	case StateProcessing:
		return "processing"
	case StateProcessed:
		return "processed"
	case StateBackgroundPlacing:
		return "background_placing"
	case StateBackgroundPlaced:
		return "background_placed"
	case StateSaving:
		return "saving"
	default:
		return "unknown"
	}
}

type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote-storage"
)

// FileSource remembers where the current input came from, so a successful
// result can be archived back next to its source.
type FileSource struct {
	Origin     Origin
	FolderPath string
	Name       string
	PublicURL  string
}

// KeyStore resolves the locally persisted API key for a model. A missing
// key is reported as an empty string, not an error.
type KeyStore interface {
	Key(ctx context.Context, model string) (string, error)
}

// ProcessedFolderName is the archival subfolder created next to
// remote-sourced inputs.
const ProcessedFolderName = "Обработанные"

// defaultCanvas is the template canvas edge used when the natural
// dimensions of the upload could not be decoded.
const defaultCanvas = 1200

var publicFolderID = regexp.MustCompile(`/d/([^/?]+)`)

// Session drives one image through select, process, template compositing,
// optional background placement and optional archival. The remote steps
// run in strict sequence; each step's input is the prior step's output.
type Session struct {
	processing *client.ProcessingClient
	storage    *client.StorageClient
	keys       KeyStore
	registry   *providers.Registry
	logger     *zap.Logger

	state  State
	source FileSource
	model  string

	original  client.Artifact
	cutout    client.Artifact
	templated client.Artifact
	placed    client.Artifact

	width  int
	height int
}

func NewSession(processing *client.ProcessingClient, storage *client.StorageClient, keys KeyStore, registry *providers.Registry, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = providers.NewRegistry()
	}

	return &Session{
		processing: processing,
		storage:    storage,
		keys:       keys,
		registry:   registry,
		logger:     logger,
		state:      StateIdle,
	}
}

func (s *Session) State() State { return s.state }
func (s *Session) Source() FileSource { return s.source }
func (s *Session) Model() string { return s.model }
func (s *Session) Original() client.Artifact { return s.original }
func (s *Session) Cutout() client.Artifact { return s.cutout }
func (s *Session) Templated() client.Artifact { return s.templated }
func (s *Session) Placed() client.Artifact { return s.placed }

// Size returns the current template canvas dimensions.
func (s *Session) Size() (int, int) { return s.width, s.height }

func (s *Session) SetModel(name string) {
	s.model = name
}

// Select takes a locally chosen file. Any prior processed artifacts are
// discarded and the remote source marker is cleared.
func (s *Session) Select(name string, data []byte) error {
	return s.selectFile(name, data, FileSource{Origin: OriginLocal, Name: name})
}

// SelectRemote takes a file fetched from remote storage and remembers its
// folder so the result can be auto-archived next to it.
func (s *Session) SelectRemote(folderPath, name string, data []byte) error {
	return s.selectFile(name, data, FileSource{
		Origin:     OriginRemote,
		FolderPath: folderPath,
		Name:       name,
	})
}

// SelectPublic takes a file from a public share link.
func (s *Session) SelectPublic(publicURL, name string, data []byte) error {
	return s.selectFile(name, data, FileSource{
		Origin:    OriginRemote,
		Name:      name,
		PublicURL: publicURL,
	})
}

func (s *Session) selectFile(name string, data []byte, source FileSource) error {
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return &client.ValidationError{Message: "selected file is not an image"}
	}

	s.original = client.NewArtifact(data, mtype.String())
	s.cutout = client.Artifact{}
	s.templated = client.Artifact{}
	s.placed = client.Artifact{}
	s.source = source
	s.state = StateSelected

	s.logger.Debug("file selected",
		zap.String("name", name),
		zap.Int("width", s.original.Width),
		zap.Int("height", s.original.Height))

	return nil
}

// Reset drops all artifacts and the source marker.
func (s *Session) Reset() {
	s.original = client.Artifact{}
	s.cutout = client.Artifact{}
	s.templated = client.Artifact{}
	s.placed = client.Artifact{}
	s.source = FileSource{}
	s.state = StateIdle
}

// Process runs the remote model and composites the cutout onto the
// template at the natural pixel dimensions of the original upload.
func (s *Session) Process(ctx context.Context) error {
	return s.ProcessWithSize(ctx, 0, 0)
}

// ProcessWithSize is Process with an explicit canvas size override.
func (s *Session) ProcessWithSize(ctx context.Context, width, height int) error {
	if s.original.Empty() {
		return &client.ValidationError{Message: "no image selected"}
	}
	if s.model == "" {
		return &client.ValidationError{Message: "no model selected"}
	}

	key := s.lookupKey(ctx, s.model)
	if key == "" && s.registry.KeyRequired(s.model) {
		return &client.ValidationError{Message: "API key required for model " + s.model}
	}

	if width <= 0 || height <= 0 {
		width, height = s.original.Width, s.original.Height
		if width <= 0 || height <= 0 {
			width, height = defaultCanvas, defaultCanvas
		}
	}

	s.state = StateProcessing

	cutout, err := s.processing.ProcessImage(ctx, s.original, s.model, key, "")
	if err != nil {
		s.state = StateSelected
		return err
	}

	templated, err := s.processing.CompositeOnTemplate(ctx, cutout, "default", width, height)
	if err != nil {
		s.state = StateSelected
		return err
	}

	// The pre-template cutout is kept around so a later resolution change
	// never has to re-run the remote model.
	s.cutout = cutout
	s.templated = templated
	s.width, s.height = width, height
	s.state = StateProcessed

	return nil
}

// ChangeResolution re-composites the retained cutout at a new canvas size.
// The remote processing step is never re-invoked.
func (s *Session) ChangeResolution(ctx context.Context, width, height int) error {
	if s.cutout.Empty() {
		return &client.ValidationError{Message: "no processed image to recomposite"}
	}
	if width <= 0 || height <= 0 {
		return &client.ValidationError{Message: "invalid template dimensions"}
	}

	templated, err := s.processing.CompositeOnTemplate(ctx, s.cutout, "default", width, height)
	if err != nil {
		return err
	}

	s.templated = templated
	s.width, s.height = width, height
	return nil
}

// PlaceOnBackground generates a scene behind the templated result. The
// plain templated artifact is kept: both stay independently downloadable,
// and the step can be retried with a different prompt.
func (s *Session) PlaceOnBackground(ctx context.Context, prompt string) error {
	if s.templated.Empty() {
		return &client.ValidationError{Message: "no processed image to place on background"}
	}

	prior := s.state
	s.state = StateBackgroundPlacing

	placed, err := s.processing.CompositeOnBackground(ctx, s.templated, prompt)
	if err != nil {
		s.state = prior
		return err
	}

	s.placed = placed
	s.state = StateBackgroundPlaced
	return nil
}

// AutoSave archives the templated result next to a remote-sourced input.
// It is strictly best-effort: every failure is logged and swallowed, since
// the processed image the user cares about already exists.
func (s *Session) AutoSave(ctx context.Context) {
	if s.source.Origin != OriginRemote || s.templated.Empty() || s.storage == nil {
		return
	}

	ok, err := s.storage.CheckAuth(ctx)
	if err != nil || !ok {
		s.logger.Warn("auto-save skipped: storage not authenticated", zap.Error(err))
		return
	}

	destDir := s.autoSaveDir()
	if destDir == "" {
		s.logger.Warn("auto-save skipped: no destination folder for source",
			zap.String("name", s.source.Name))
		return
	}

	prior := s.state
	s.state = StateSaving
	defer func() { s.state = prior }()

	processedDir := destDir + "/" + ProcessedFolderName
	if _, err := s.storage.CreateFolder(ctx, processedDir); err != nil {
		s.logger.Warn("auto-save failed: folder creation", zap.String("path", processedDir), zap.Error(err))
		return
	}

	destPath := processedDir + "/" + outputFileName(s.source.Name)
	if _, err := s.storage.UploadFile(ctx, destPath, s.templated); err != nil {
		s.logger.Warn("auto-save failed: upload", zap.String("path", destPath), zap.Error(err))
		return
	}

	s.logger.Info("result archived", zap.String("path", destPath))
}

func (s *Session) autoSaveDir() string {
	if s.source.PublicURL != "" {
		m := publicFolderID.FindStringSubmatch(s.source.PublicURL)
		if m == nil {
			return ""
		}
		return "/" + m[1]
	}

	return strings.TrimSuffix(s.source.FolderPath, "/")
}

func (s *Session) lookupKey(ctx context.Context, model string) string {
	if s.keys == nil {
		return ""
	}

	key, err := s.keys.Key(ctx, model)
	if err != nil {
		s.logger.Warn("api key lookup failed", zap.String("model", model), zap.Error(err))
		return ""
	}

	return key
}

// outputFileName normalizes the archived result to the original base name
// with a png extension.
func outputFileName(name string) string {
	base := strings.TrimSuffix(path.Base(name), path.Ext(name))
	if base == "" || base == "." {
		base = "processed"
	}

	return base + ".png"
}

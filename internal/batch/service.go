package batch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/clearcut-studio/studio-server/internal/compositor"
	"github.com/clearcut-studio/studio-server/internal/config"
	"github.com/clearcut-studio/studio-server/internal/disk"
	"github.com/clearcut-studio/studio-server/internal/mq"
	"github.com/clearcut-studio/studio-server/internal/providers"
	"github.com/clearcut-studio/studio-server/pkg/logger"
)

// DefaultOutputFolder is the archival subfolder created inside each
// processed folder.
const DefaultOutputFolder = "Обработанные"

// TopicFor names the queue topic carrying one job's progress events.
func TopicFor(jobID string) string {
	return config.DefaultBatchPrefix + jobID
}

// Service executes batch jobs server-side: it walks the storage subtree,
// processes every image through the selected model, composites the result
// onto the job's canvas and uploads it next to the source. Progress travels
// to stream handlers as msgpack events over the queue.
type Service struct {
	disk      *disk.Client
	providers *providers.Registry
	queue     mq.MQ
	logger    *zap.Logger
}

func NewService(diskClient *disk.Client, registry *providers.Registry, queue mq.MQ) *Service {
	return &Service{
		disk:      diskClient,
		providers: registry,
		queue:     queue,
		logger:    logger.GetLogger(),
	}
}

// Run processes the job and publishes its event stream to TopicFor(jobID).
// The topic is closed when the run ends, whatever the outcome. Per-file and
// per-folder failures are recorded in the summary, never fatal; only a
// failure to list the base path aborts the run before `complete`.
func (s *Service) Run(ctx context.Context, jobID string, job Job) error {
	topic := TopicFor(jobID)
	defer s.queue.CloseTopic(topic)

	apiKey := s.providers.ResolveKey(job.Model, job.APIKey)
	if s.providers.KeyRequired(job.Model) && apiKey == "" {
		s.publish(ctx, topic, Event{
			Type:  EventComplete,
			Error: fmt.Sprintf("no API key available for model %q", job.Model),
			Summary: &Summary{
				Errors: []string{fmt.Sprintf("no API key available for model %q", job.Model)},
			},
		})
		return fmt.Errorf("no API key available for model %q", job.Model)
	}

	provider, ok := s.providers.Lookup(job.Model)
	if !ok {
		err := fmt.Errorf("unknown model %q", job.Model)
		s.publish(ctx, topic, Event{
			Type:    EventComplete,
			Error:   err.Error(),
			Summary: &Summary{Errors: []string{err.Error()}},
		})
		return err
	}

	outputFolder := job.OutputFolder
	if outputFolder == "" {
		outputFolder = DefaultOutputFolder
	}

	base, err := s.disk.List(ctx, job.Token, job.BasePath, 1000)
	if err != nil {
		s.publish(ctx, topic, Event{
			Type:    EventComplete,
			Error:   err.Error(),
			Summary: &Summary{Errors: []string{err.Error()}},
		})
		return err
	}

	folders := subfolders(base)
	// A base path that holds images directly is treated as a single folder.
	if len(folders) == 0 {
		folders = []disk.Resource{*base}
	}

	summary := &Summary{ModelCounts: map[string]int{}}

	s.publish(ctx, topic, Event{
		Type:         EventStart,
		Message:      fmt.Sprintf("processing %d folders", len(folders)),
		TotalFolders: len(folders),
	})

	for i, folder := range folders {
		if ctx.Err() != nil {
			break
		}

		result := s.processFolder(ctx, topic, job, provider, apiKey, folder, outputFolder, i+1, len(folders), summary)
		summary.Folders = append(summary.Folders, result)
		summary.FoldersProcessed++

		eventType := EventFolderComplete
		if len(result.Errors) > 0 && result.FilesProcessed == 0 {
			eventType = EventFolderError
		}
		s.publish(ctx, topic, Event{
			Type:         eventType,
			Folder:       folder.Name,
			Message:      fmt.Sprintf("folder %s: %d files processed", folder.Name, result.FilesProcessed),
			FolderIndex:  i + 1,
			TotalFolders: len(folders),
		})
	}

	summary.CostEstimate = float64(summary.FilesProcessed) * s.providers.CostPerCall(job.Model)

	s.publish(ctx, topic, Event{
		Type:         EventComplete,
		Message:      fmt.Sprintf("done: %d folders, %d files", summary.FoldersProcessed, summary.FilesProcessed),
		TotalFolders: len(folders),
		FolderIndex:  len(folders),
		Summary:      summary,
	})

	return nil
}

func (s *Service) processFolder(ctx context.Context, topic string, job Job, provider providers.Provider, apiKey string, folder disk.Resource, outputFolder string, index, total int, summary *Summary) FolderResult {
	result := FolderResult{Name: folder.Name, Path: folder.Path}

	s.publish(ctx, topic, Event{
		Type:         EventFolderStart,
		Folder:       folder.Name,
		Message:      "processing folder " + folder.Name,
		FolderIndex:  index,
		TotalFolders: total,
	})

	listing, err := s.disk.List(ctx, job.Token, folder.Path, 1000)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		summary.Errors = append(summary.Errors, folder.Name+": "+err.Error())
		return result
	}

	files := imageFiles(listing)
	if len(files) == 0 {
		return result
	}

	outputPath := path.Join(folder.Path, outputFolder)
	if _, err := s.disk.CreateFolder(ctx, job.Token, outputPath); err != nil {
		result.Errors = append(result.Errors, err.Error())
		summary.Errors = append(summary.Errors, folder.Name+": "+err.Error())
		return result
	}

	for j, file := range files {
		if ctx.Err() != nil {
			return result
		}

		s.publish(ctx, topic, Event{
			Type:       EventFileStart,
			Folder:     folder.Name,
			File:       file.Name,
			Message:    "processing " + file.Name,
			FileIndex:  j + 1,
			TotalFiles: len(files),
		})

		if err := s.processFile(ctx, topic, job, provider, apiKey, folder, file, outputPath, j+1, len(files)); err != nil {
			s.logger.Warn("file failed",
				zap.String("folder", folder.Path),
				zap.String("file", file.Name),
				zap.Error(err))
			result.Errors = append(result.Errors, file.Name+": "+err.Error())
			s.publish(ctx, topic, Event{
				Type:       EventFileError,
				Folder:     folder.Name,
				File:       file.Name,
				Error:      err.Error(),
				FileIndex:  j + 1,
				TotalFiles: len(files),
			})
			continue
		}

		result.FilesProcessed++
		summary.FilesProcessed++
		summary.ModelCounts[job.Model]++
		s.publish(ctx, topic, Event{
			Type:       EventFileComplete,
			Folder:     folder.Name,
			File:       file.Name,
			FileIndex:  j + 1,
			TotalFiles: len(files),
		})
	}

	// One folder-level design pass: the first processed file becomes the
	// folder preview card.
	if result.FilesProcessed > 0 {
		s.publish(ctx, topic, Event{Type: EventDesignStart, Folder: folder.Name, Message: "creating design for " + folder.Name})
		if err := s.createDesign(ctx, job, files[0], folder, outputPath); err != nil {
			result.Errors = append(result.Errors, "design: "+err.Error())
		} else {
			result.DesignCreated = true
			s.publish(ctx, topic, Event{Type: EventDesignComplete, Folder: folder.Name})
		}
	}

	return result
}

func (s *Service) processFile(ctx context.Context, topic string, job Job, provider providers.Provider, apiKey string, folder disk.Resource, file disk.Resource, outputPath string, index, total int) error {
	body, err := s.disk.Download(ctx, job.Token, file.Path)
	if err != nil {
		return err
	}
	source, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		return err
	}
	if len(source) == 0 {
		return fmt.Errorf("downloaded zero bytes for %s", file.Path)
	}

	s.publish(ctx, topic, Event{
		Type:       EventProcessing,
		Folder:     folder.Name,
		File:       file.Name,
		FileIndex:  index,
		TotalFiles: total,
	})

	cutout, err := provider.Remove(ctx, source, apiKey, "")
	if err != nil {
		return err
	}

	subject, err := compositor.Decode(cutout)
	if err != nil {
		return err
	}

	composed, err := compositor.PlaceOnTemplate(subject, nil, job.Width, job.Height)
	if err != nil {
		return err
	}

	s.publish(ctx, topic, Event{
		Type:       EventSaving,
		Folder:     folder.Name,
		File:       file.Name,
		FileIndex:  index,
		TotalFiles: total,
	})

	target := path.Join(outputPath, outputName(file.Name))
	return s.disk.Upload(ctx, job.Token, target, bytes.NewReader(composed))
}

// createDesign re-composites the folder's first image onto the square
// preview canvas and stores it alongside the results.
func (s *Service) createDesign(ctx context.Context, job Job, file disk.Resource, folder disk.Resource, outputPath string) error {
	body, err := s.disk.Download(ctx, job.Token, path.Join(outputPath, outputName(file.Name)))
	if err != nil {
		return err
	}
	processed, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		return err
	}

	subject, err := compositor.Decode(processed)
	if err != nil {
		return err
	}

	design, err := compositor.PlaceOnTemplate(subject, nil, compositor.DefaultCanvas, compositor.DefaultCanvas)
	if err != nil {
		return err
	}

	target := path.Join(outputPath, "design_"+folder.Name+".png")
	return s.disk.Upload(ctx, job.Token, target, bytes.NewReader(design))
}

func (s *Service) publish(ctx context.Context, topic string, ev Event) {
	payload, err := msgpack.Marshal(&ev)
	if err != nil {
		s.logger.Error("failed to encode event", zap.Error(err))
		return
	}

	if err := s.queue.Publish(ctx, topic, payload); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("topic", topic), zap.String("type", ev.Type), zap.Error(err))
	}
}

func subfolders(res *disk.Resource) []disk.Resource {
	if res == nil || res.Embedded == nil {
		return nil
	}

	var out []disk.Resource
	for _, item := range res.Embedded.Items {
		if item.IsDir() {
			out = append(out, item)
		}
	}
	return out
}

func imageFiles(res *disk.Resource) []disk.Resource {
	if res == nil || res.Embedded == nil {
		return nil
	}

	var out []disk.Resource
	for _, item := range res.Embedded.Items {
		if !item.IsDir() && strings.HasPrefix(item.MimeType, "image/") {
			out = append(out, item)
		}
	}
	return out
}

func outputName(name string) string {
	ext := path.Ext(name)
	return strings.TrimSuffix(name, ext) + ".png"
}

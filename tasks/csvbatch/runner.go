// Package csvbatch runs a prompt over every row of a directory of CSV files, one
// model batch per fixed-size chunk, writing one output file per chunk.
package csvbatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/llm-csv/internal/csvchunk"
	"github.com/temirov/llm-csv/internal/fsops"
	"github.com/temirov/llm-csv/internal/journal"
	"github.com/temirov/llm-csv/internal/pipeline"
	"github.com/temirov/llm-csv/internal/prompt"
)

const (
	DefaultChunkSize      = 100
	artifactNameFormat    = "%s_%05d_processed.csv"
	progressComplete      = 100
	outputDirErrorFormat  = "create output directory %s: %w"
	listInputsErrorFormat = "list inputs: %w"
)

var defaultExtensions = []string{".csv"}

// Config is the immutable description of one run.
type Config struct {
	InputDir   string
	OutputDir  string
	ChunkSize  int
	Extensions []string
	// Pacing is waited after every chunk that was sent to the model.
	Pacing time.Duration
	// OutputFields lead the header of every artifact.
	OutputFields []string
}

// Summary counts what a run did.
type Summary struct {
	RunID         string
	FilesSeen     int
	FilesSkipped  int
	ChunksWritten int
	ChunksSkipped int
	ChunksFailed  int
	RowsWritten   int
	RowsDropped   int
	Cancelled     bool
}

func (s Summary) String() string {
	state := "completed"
	if s.Cancelled {
		state = "stopped"
	}
	return fmt.Sprintf("Run %s: files=%d files_skipped=%d chunks_written=%d chunks_skipped=%d chunks_failed=%d rows_written=%d rows_dropped=%d",
		state, s.FilesSeen, s.FilesSkipped, s.ChunksWritten, s.ChunksSkipped, s.ChunksFailed, s.RowsWritten, s.RowsDropped)
}

// Runner walks the input directory and drives the retry controller chunk by chunk.
type Runner struct {
	FS         fsops.Ops
	Template   prompt.Template
	Controller pipeline.Controller
	Config     Config
	Logger     *zap.Logger
	Journal    journal.Recorder
	RunID      string
	Sleep      func(ctx context.Context, d time.Duration) error
}

// ArtifactName is the output file name of chunk index of the input named baseName.
func ArtifactName(baseName string, index int) string {
	return fmt.Sprintf(artifactNameFormat, baseName, index)
}

type runState struct {
	runner   *Runner
	ctx      context.Context
	observer Observer
	summary  Summary
	files    int
	progress int
}

// Run processes every input file. It returns an error only when the run cannot start;
// per-file and per-chunk failures are reported to observer and counted in the summary.
// Cancelling ctx stops the run before the next file or chunk.
func (r *Runner) Run(ctx context.Context, observer Observer) (Summary, error) {
	if observer == nil {
		observer = nopObserver{}
	}
	state := &runState{runner: r, ctx: ctx, observer: observer, summary: Summary{RunID: r.RunID}}
	r.record(ctx, journal.Event{Type: journal.EventRunStarted, Detail: r.Config.InputDir})

	if err := r.FS.EnsureDir(r.Config.OutputDir); err != nil {
		return state.fail(fmt.Errorf(outputDirErrorFormat, r.Config.OutputDir, err))
	}
	if removed, err := r.FS.RemoveStale(r.Config.OutputDir); err == nil && removed > 0 {
		r.logger().Info("removed stale partial outputs", zap.Int("count", removed))
	}
	extensions := r.Config.Extensions
	if len(extensions) == 0 {
		extensions = defaultExtensions
	}
	files, err := r.FS.ListInputs(r.Config.InputDir, extensions)
	if err != nil {
		return state.fail(fmt.Errorf(listInputsErrorFormat, err))
	}
	state.files = len(files)
	state.summary.FilesSeen = len(files)
	if len(files) == 0 {
		state.say("No input files found in %s", r.Config.InputDir)
	}

	for fileIndex, file := range files {
		if ctx.Err() != nil {
			state.summary.Cancelled = true
			break
		}
		if stopped := state.processFile(fileIndex, file); stopped {
			state.summary.Cancelled = true
			break
		}
	}

	if state.summary.Cancelled {
		state.say("Processing stopped")
		r.record(ctx, journal.Event{Type: journal.EventRunCancelled, Rows: state.summary.RowsWritten})
	} else {
		state.emit(progressComplete)
		r.record(ctx, journal.Event{Type: journal.EventRunCompleted, Rows: state.summary.RowsWritten})
	}
	state.say("%s", state.summary.String())
	return state.summary, nil
}

func (s *runState) fail(err error) (Summary, error) {
	s.runner.logger().Error("run failed", zap.Error(err))
	s.observer.Log(err.Error())
	s.runner.record(s.ctx, journal.Event{Type: journal.EventRunFailed, Detail: err.Error()})
	return s.summary, err
}

// processFile returns true when cancellation interrupted the file.
func (s *runState) processFile(fileIndex int, file fsops.FileInfo) bool {
	r := s.runner
	fileName := filepath.Base(file.AbsolutePath)
	logger := r.logger().With(zap.String("file", fileName))

	total, err := s.countRows(file.AbsolutePath)
	if err != nil {
		s.skipFile(fileIndex, fileName, err)
		return false
	}
	handle, err := r.FS.Open(file.AbsolutePath)
	if err != nil {
		s.skipFile(fileIndex, fileName, err)
		return false
	}
	defer func() { _ = handle.Close() }()

	chunkSize := r.Config.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	reader, err := csvchunk.NewReader(handle, chunkSize)
	if err != nil {
		s.skipFile(fileIndex, fileName, err)
		return false
	}
	reader.OnSkip = func(skipped csvchunk.Skipped) {
		logger.Warn("malformed row skipped", zap.Int("line", skipped.Line), zap.String("reason", skipped.Reason))
	}

	s.say("Processing %s (%d rows)", fileName, total)
	r.record(s.ctx, journal.Event{Type: journal.EventFileStarted, File: fileName, Rows: total})

	processed := 0
	for chunkIndex := 0; ; chunkIndex++ {
		if s.ctx.Err() != nil {
			return true
		}
		rows, readErr := reader.Next()
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			logger.Error("read chunk failed, skipping rest of file", zap.Int("chunk", chunkIndex), zap.Error(readErr))
			s.say("Failed to read %s: %v", fileName, readErr)
			break
		}

		artifactPath := filepath.Join(r.Config.OutputDir, ArtifactName(file.BaseName, chunkIndex))
		if r.FS.FileExists(artifactPath) {
			s.summary.ChunksSkipped++
			processed += len(rows)
			s.say("Chunk %d of %s already processed, skipping", chunkIndex, fileName)
			r.record(s.ctx, journal.Event{Type: journal.EventChunkSkipped, File: fileName, ChunkIndex: chunkIndex, Rows: len(rows)})
			s.emit(s.percent(fileIndex, processed, total))
			continue
		}

		if stopped := s.processChunk(fileName, chunkIndex, rows, artifactPath); stopped {
			return true
		}
		processed += len(rows)
		s.emit(s.percent(fileIndex, processed, total))

		if r.Config.Pacing > 0 {
			if err := r.sleep(s.ctx, r.Config.Pacing); err != nil {
				return true
			}
		}
	}
	s.emit(s.percent(fileIndex, 0, 0))
	return false
}

// processChunk returns true when cancellation cut the chunk short; nothing is written then.
func (s *runState) processChunk(fileName string, chunkIndex int, rows []csvchunk.Row, artifactPath string) bool {
	r := s.runner
	logger := r.logger().With(zap.String("file", fileName), zap.Int("chunk", chunkIndex))

	requests := make([]pipeline.LLMRequest, len(rows))
	for index, row := range rows {
		requests[index] = r.Template.Render(row)
	}

	started := time.Now()
	outcome := r.Controller.Process(s.ctx, requests, s.observer.Log)
	if outcome.Interrupted {
		logger.Info("chunk interrupted by stop request, not written")
		return true
	}
	if outcome.Dropped > 0 {
		s.summary.RowsDropped += outcome.Dropped
		r.record(s.ctx, journal.Event{Type: journal.EventRowsDropped, File: fileName, ChunkIndex: chunkIndex, Rows: outcome.Dropped})
	}

	if err := writeArtifact(r.FS, artifactPath, r.Config.OutputFields, outcome.Records); err != nil {
		s.summary.ChunksFailed++
		logger.Error("write chunk failed", zap.Error(err))
		s.say("Failed to write %s: %v", filepath.Base(artifactPath), err)
		r.record(s.ctx, journal.Event{Type: journal.EventChunkFailed, File: fileName, ChunkIndex: chunkIndex, Detail: err.Error()})
		return false
	}

	s.summary.ChunksWritten++
	s.summary.RowsWritten += len(outcome.Records)
	logger.Info("chunk written",
		zap.String("artifact", filepath.Base(artifactPath)),
		zap.Int("rows_in", len(rows)),
		zap.Int("rows_out", len(outcome.Records)),
		zap.Duration("elapsed", time.Since(started)))
	s.say("Wrote %s (%d of %d rows)", filepath.Base(artifactPath), len(outcome.Records), len(rows))
	r.record(s.ctx, journal.Event{Type: journal.EventChunkWritten, File: fileName, ChunkIndex: chunkIndex, Rows: len(outcome.Records)})
	return false
}

func (s *runState) countRows(path string) (int, error) {
	handle, err := s.runner.FS.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = handle.Close() }()
	return csvchunk.CountRows(handle)
}

func (s *runState) skipFile(fileIndex int, fileName string, err error) {
	s.summary.FilesSkipped++
	s.runner.logger().Error("input file skipped", zap.String("file", fileName), zap.Error(err))
	s.say("Skipping %s: %v", fileName, err)
	s.runner.record(s.ctx, journal.Event{Type: journal.EventFileSkipped, File: fileName, Detail: err.Error()})
	s.emit(s.percent(fileIndex, 0, 0))
}

// percent maps a position inside file fileIndex onto the whole run. A file without
// rows counts as finished.
func (s *runState) percent(fileIndex, processed, total int) int {
	if s.files == 0 {
		return progressComplete
	}
	fraction := 1.0
	if total > 0 {
		fraction = float64(processed) / float64(total)
		if fraction > 1 {
			fraction = 1
		}
	}
	return int((float64(fileIndex) + fraction) / float64(s.files) * progressComplete)
}

// emit reports progress, never moving backwards and never past 100.
func (s *runState) emit(percent int) {
	if percent > progressComplete {
		percent = progressComplete
	}
	if percent < s.progress {
		percent = s.progress
	}
	s.progress = percent
	s.observer.Progress(percent)
}

func (s *runState) say(format string, args ...any) {
	message := fmt.Sprintf(format, args...)
	s.runner.logger().Debug(message)
	s.observer.Log(message)
}

func (r *Runner) record(ctx context.Context, event journal.Event) {
	if r.Journal == nil {
		return
	}
	event.RunID = r.RunID
	r.Journal.Record(ctx, event)
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	return pipeline.SleepContext(ctx, d)
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

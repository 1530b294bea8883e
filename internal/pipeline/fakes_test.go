package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuongbtq/mediaflow/internal/acquire"
	"github.com/cuongbtq/mediaflow/internal/analysis"
	"github.com/cuongbtq/mediaflow/internal/bridge"
	"github.com/cuongbtq/mediaflow/internal/job"
	"github.com/cuongbtq/mediaflow/internal/library"
	"github.com/cuongbtq/mediaflow/internal/media"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDownloader struct {
	dir    string
	result acquire.Result
	err    error
	steps  []float64
}

func (d *fakeDownloader) Download(_ context.Context, _ string, dir string, progress func(float64)) (acquire.Result, error) {
	d.dir = dir
	for _, s := range d.steps {
		progress(s)
	}
	return d.result, d.err
}

type fakeMedia struct {
	extracted  string
	extractErr error
	fixOutput  string
	normalized string
	steps      []float64
}

func (m *fakeMedia) ExtractAudio(_ context.Context, _, out string) error {
	m.extracted = out
	if m.extractErr != nil {
		return m.extractErr
	}
	return os.WriteFile(out, []byte("RIFF"), 0o644)
}

func (m *fakeMedia) FixAspectRatio(_ context.Context, in string, progress media.ProgressFunc) (string, error) {
	for _, s := range m.steps {
		progress(s)
	}
	if m.fixOutput == "" {
		return in, nil
	}
	return m.fixOutput, nil
}

func (m *fakeMedia) NormalizeAudio(_ context.Context, in string, progress media.ProgressFunc) (string, error) {
	for _, s := range m.steps {
		progress(s)
	}
	m.normalized = in
	return in, nil
}

type fakeTranscriber struct {
	audioExisted bool
	readings     []bridge.Progress
	result       bridge.Transcription
	err          error
}

func (t *fakeTranscriber) Transcribe(_ context.Context, audioPath, _, _ string, onProgress func(bridge.Progress)) (bridge.Transcription, error) {
	_, err := os.Stat(audioPath)
	t.audioExisted = err == nil
	for _, r := range t.readings {
		onProgress(r)
	}
	return t.result, t.err
}

type fakeAnalyzer struct {
	req    analysis.Request
	calls  [][2]int
	result *job.Analysis
	err    error
}

func (a *fakeAnalyzer) Analyze(_ context.Context, req analysis.Request, progress analysis.ProgressFunc) (*job.Analysis, error) {
	a.req = req
	for _, c := range a.calls {
		progress(c[0], c[1])
	}
	if a.err != nil {
		return nil, a.err
	}
	out := *a.result
	out.ReportPath = req.ReportPath
	return &out, os.WriteFile(req.ReportPath, []byte("report body"), 0o644)
}

type fakeLibrary struct {
	mu           sync.Mutex
	clipFolder   string
	items        map[string]*library.Item
	importErr    error
	minimalErr   error
	imports      []string
	minimal      []string
	updatedPaths map[string]string
	purged       []string
	transcripts  map[string]library.Transcript
	analyses     map[string]library.Analysis
	sections     map[string][]library.Section
	descriptions map[string]string
	titles       map[string]string
	tags         map[string][]string
	nextID       int
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{
		items:        map[string]*library.Item{},
		updatedPaths: map[string]string{},
		transcripts:  map[string]library.Transcript{},
		analyses:     map[string]library.Analysis{},
		sections:     map[string][]library.Section{},
		descriptions: map[string]string{},
		titles:       map[string]string{},
		tags:         map[string][]string{},
	}
}

func (l *fakeLibrary) add(path, title string) *library.Item {
	l.nextID++
	item := &library.Item{ID: fmt.Sprintf("media-%d", l.nextID), Path: path, Filename: filepath.Base(path), Title: title}
	l.items[item.ID] = item
	return item
}

func (l *fakeLibrary) ActiveClipFolder(context.Context) (string, error) { return l.clipFolder, nil }

func (l *fakeLibrary) Get(_ context.Context, id string) (*library.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if item, ok := l.items[id]; ok {
		return item, nil
	}
	return nil, library.ErrMediaNotFound
}

func (l *fakeLibrary) FindByPath(_ context.Context, path string) (*library.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, item := range l.items {
		if item.Path == path {
			return item, nil
		}
	}
	return nil, library.ErrMediaNotFound
}

func (l *fakeLibrary) Import(_ context.Context, path string) (*library.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.imports = append(l.imports, path)
	if l.importErr != nil {
		return nil, l.importErr
	}
	return l.add(path, job.TitleFromPath(path)), nil
}

func (l *fakeLibrary) CreateMinimal(_ context.Context, path, title string) (*library.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minimal = append(l.minimal, path)
	if l.minimalErr != nil {
		return nil, l.minimalErr
	}
	return l.add(path, title), nil
}

func (l *fakeLibrary) UpdatePath(_ context.Context, id, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updatedPaths[id] = path
	if item, ok := l.items[id]; ok {
		item.Path = path
	}
	return nil
}

func (l *fakeLibrary) DeleteAIArtifacts(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.purged = append(l.purged, id)
	return nil
}

func (l *fakeLibrary) SaveTranscript(_ context.Context, t library.Transcript) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transcripts[t.MediaID] = t
	return nil
}

func (l *fakeLibrary) SaveAnalysis(_ context.Context, a library.Analysis) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.analyses[a.MediaID] = a
	return nil
}

func (l *fakeLibrary) ReplaceSections(_ context.Context, id string, sections []library.Section) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sections[id] = sections
	return nil
}

func (l *fakeLibrary) SetDescription(_ context.Context, id, d string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.descriptions[id] = d
	return nil
}

func (l *fakeLibrary) SetSuggestedTitle(_ context.Context, id, t string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.titles[id] = t
	return nil
}

func (l *fakeLibrary) AddTags(_ context.Context, id, tagType, _ string, names []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tags[id+"/"+tagType] = append(l.tags[id+"/"+tagType], names...)
	return nil
}

type fakeArchiver struct {
	objects map[string]string
}

func (a *fakeArchiver) Archive(_ context.Context, mediaID, name string, data []byte, _ string) error {
	if a.objects == nil {
		a.objects = map[string]string{}
	}
	a.objects[mediaID+"/"+name] = string(data)
	return nil
}

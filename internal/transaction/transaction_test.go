package transaction

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cubeice/ice/internal/archive"
	"github.com/cubeice/ice/internal/engine"
	"github.com/cubeice/ice/internal/engine/codecs"
)

type selectFunc func(ctx context.Context, req Request, suggested string) (Destination, error)

func (f selectFunc) Select(ctx context.Context, req Request, suggested string) (Destination, error) {
	return f(ctx, req, suggested)
}

type runtimeFunc func(ctx context.Context, req Request) (RuntimeOptions, error)

func (f runtimeFunc) Resolve(ctx context.Context, req Request) (RuntimeOptions, error) {
	return f(ctx, req)
}

func acceptSuggested(_ context.Context, _ Request, suggested string) (Destination, error) {
	return Destination{Path: suggested}, nil
}

func fixedOptions(opts RuntimeOptions) runtimeFunc {
	return func(context.Context, Request) (RuntimeOptions, error) {
		return opts, nil
	}
}

type fakePost struct {
	opened  []string
	mailed  []string
	mailErr error
	openErr error
}

func (p *fakePost) OpenFolder(_ context.Context, path string, _ OpenPolicy) error {
	p.opened = append(p.opened, path)
	return p.openErr
}

func (p *fakePost) SendMail(_ context.Context, path string) error {
	p.mailed = append(p.mailed, path)
	return p.mailErr
}

type publishFunc func(ctx context.Context, path string) error

func (f publishFunc) Publish(ctx context.Context, path string) error {
	return f(ctx, path)
}

type countingQuery struct {
	answer string
	calls  int
}

func (q *countingQuery) RequestPassword() (string, bool) {
	q.calls++
	return q.answer, q.answer == ""
}

var zipOptions = RuntimeOptions{Format: engine.FormatZip, Level: engine.LevelNormal, Threads: 1}

func setup(t *testing.T) (engine.Engine, afero.Fs, string) {
	t.Helper()
	fs := afero.NewOsFs()
	r := engine.NewRegistry(zap.NewNop(), fs)
	codecs.RegisterAll(r, codecs.WithScryptWorkFactor(10))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doc.txt"), []byte("the quick brown fox"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "album", "2024"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "album", "2024", "a.jpg"), []byte("jpeg"), 0o644))
	return r, fs, dir
}

func tempFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var temps []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tempPrefix) {
			temps = append(temps, e.Name())
		}
	}
	return temps
}

func TestCompressCommitsArchive(t *testing.T) {
	eng, fs, dir := setup(t)
	post := &fakePost{}
	var published []string

	facade := NewCompressFacade(eng, fs, zap.NewNop(), archive.NewController(), Collaborators{
		Selector:  selectFunc(acceptSuggested),
		Runtime:   fixedOptions(zipOptions),
		Passwords: &countingQuery{},
		Post:      post,
		Publisher: publishFunc(func(_ context.Context, path string) error {
			published = append(published, path)
			return nil
		}),
	}, PostOptions{Open: OpenAlways})

	report, err := facade.Run(t.Context(), Request{Sources: []string{filepath.Join(dir, "doc.txt")}})
	require.NoError(t, err)

	want := filepath.Join(dir, "doc.zip")
	assert.Equal(t, StateDone, report.State)
	assert.Equal(t, StateDone, facade.State())
	assert.Equal(t, want, report.Destination.Path)
	assert.Equal(t, dir, filepath.Dir(report.Destination.Temp))
	assert.NoError(t, report.PostErr)
	assert.FileExists(t, want)
	assert.NoFileExists(t, report.Destination.Temp)
	assert.Empty(t, tempFiles(t, dir))
	assert.Equal(t, []string{want}, post.opened)
	assert.Equal(t, []string{want}, published)
	assert.Empty(t, post.mailed)

	_, err = facade.Run(t.Context(), Request{Sources: []string{filepath.Join(dir, "album")}})
	require.NoError(t, err, "a finished facade can run again")
	assert.FileExists(t, filepath.Join(dir, "album.zip"))
}

func TestCompressFailures(t *testing.T) {
	tests := []struct {
		name      string
		sources   func(dir string) []string
		selector  func(dir string) selectFunc
		collab    func(c *Collaborators)
		wantState State
		wantErr   error
	}{
		{
			name:      "no sources",
			sources:   func(string) []string { return nil },
			wantState: StatePreProcess,
			wantErr:   archive.ErrContractViolation,
		},
		{
			name:      "missing resolver",
			collab:    func(c *Collaborators) { c.Runtime = nil },
			wantState: StatePreProcess,
			wantErr:   archive.ErrContractViolation,
		},
		{
			name: "conflict cancelled",
			selector: func(dir string) selectFunc {
				return func(context.Context, Request, string) (Destination, error) {
					return Destination{Path: filepath.Join(dir, "doc.txt"), Conflict: ConflictCancel}, nil
				}
			},
			wantState: StatePreProcess,
			wantErr:   engine.ErrCancelled,
		},
		{
			name:      "duplicate source",
			sources:   func(dir string) []string { return []string{filepath.Join(dir, "doc.txt"), filepath.Join(dir, "doc.txt")} },
			wantState: StateProcessing,
			wantErr:   archive.ErrDuplicateSource,
		},
		{
			name: "destination is a directory",
			selector: func(dir string) selectFunc {
				return func(context.Context, Request, string) (Destination, error) {
					return Destination{Path: filepath.Join(dir, "album"), Conflict: ConflictOverwrite}, nil
				}
			},
			wantState: StateProcessing,
			wantErr:   ErrCommitFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, fs, dir := setup(t)
			collab := Collaborators{
				Selector:  selectFunc(acceptSuggested),
				Runtime:   fixedOptions(zipOptions),
				Passwords: &countingQuery{},
			}
			if tt.selector != nil {
				collab.Selector = tt.selector(dir)
			}
			if tt.collab != nil {
				tt.collab(&collab)
			}
			sources := []string{filepath.Join(dir, "doc.txt")}
			if tt.sources != nil {
				sources = tt.sources(dir)
			}

			facade := NewCompressFacade(eng, fs, zap.NewNop(), nil, collab, PostOptions{})
			report, err := facade.Run(t.Context(), Request{Sources: sources})
			require.ErrorIs(t, err, tt.wantErr)

			var failure *Failure
			require.ErrorAs(t, err, &failure)
			assert.Equal(t, tt.wantState, failure.State)
			assert.Equal(t, StateFailed, report.State)
			assert.Equal(t, StateFailed, facade.State())
			assert.NoFileExists(t, filepath.Join(dir, "doc.zip"))
		})
	}
}

func TestCompressCancelKeepsDestination(t *testing.T) {
	eng, fs, dir := setup(t)
	dest := filepath.Join(dir, "existing.zip")
	require.NoError(t, os.WriteFile(dest, []byte("previous archive"), 0o644))

	controller := archive.NewController()
	controller.Cancel()
	facade := NewCompressFacade(eng, fs, zap.NewNop(), controller, Collaborators{
		Selector: selectFunc(func(context.Context, Request, string) (Destination, error) {
			return Destination{Path: dest, Conflict: ConflictOverwrite}, nil
		}),
		Runtime:   fixedOptions(zipOptions),
		Passwords: &countingQuery{},
	}, PostOptions{})

	report, err := facade.Run(t.Context(), Request{Sources: []string{filepath.Join(dir, "album")}})
	require.ErrorIs(t, err, engine.ErrCancelled)
	assert.Equal(t, StateFailed, report.State)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "previous archive", string(data))
}

func TestCompressOverwrite(t *testing.T) {
	eng, fs, dir := setup(t)
	dest := filepath.Join(dir, "doc.zip")
	require.NoError(t, os.WriteFile(dest, []byte("stale"), 0o644))

	facade := NewCompressFacade(eng, fs, zap.NewNop(), nil, Collaborators{
		Selector: selectFunc(func(_ context.Context, _ Request, suggested string) (Destination, error) {
			return Destination{Path: suggested, Conflict: ConflictOverwrite}, nil
		}),
		Runtime:   fixedOptions(zipOptions),
		Passwords: &countingQuery{},
	}, PostOptions{})

	_, err := facade.Run(t.Context(), Request{Sources: []string{filepath.Join(dir, "doc.txt")}})
	require.NoError(t, err)

	format, err := engine.DetectFile(fs, dest)
	require.NoError(t, err)
	assert.Equal(t, engine.FormatZip, format)
}

func TestPostProcessing(t *testing.T) {
	tests := []struct {
		name         string
		post         *fakePost
		deleteOnMail bool
		wantKept     bool
		wantPostErr  string
	}{
		{name: "mail keeps archive", post: &fakePost{}, wantKept: true},
		{name: "mail deletes archive", post: &fakePost{}, deleteOnMail: true, wantKept: false},
		{name: "failed mail keeps archive", post: &fakePost{mailErr: errors.New("no mail client")}, deleteOnMail: true, wantKept: true, wantPostErr: "no mail client"},
		{name: "failed open is reported", post: &fakePost{openErr: errors.New("no desktop")}, wantKept: true, wantPostErr: "no desktop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, fs, dir := setup(t)
			facade := NewCompressFacade(eng, fs, zap.NewNop(), nil, Collaborators{
				Selector:  selectFunc(acceptSuggested),
				Runtime:   fixedOptions(zipOptions),
				Passwords: &countingQuery{},
				Post:      tt.post,
			}, PostOptions{Open: OpenSkipDesktop, DeleteOnMail: tt.deleteOnMail})

			report, err := facade.Run(t.Context(), Request{Sources: []string{filepath.Join(dir, "doc.txt")}, Mail: true})
			require.NoError(t, err)
			assert.Equal(t, StateDone, report.State)
			assert.Len(t, tt.post.mailed, 1)

			if tt.wantPostErr == "" {
				assert.NoError(t, report.PostErr)
			} else {
				assert.ErrorContains(t, report.PostErr, tt.wantPostErr)
			}
			if tt.wantKept {
				assert.FileExists(t, report.Destination.Path)
			} else {
				assert.NoFileExists(t, report.Destination.Path)
			}
		})
	}
}

func TestEncryptedRoundTrip(t *testing.T) {
	eng, fs, dir := setup(t)
	query := &countingQuery{answer: "hunter2"}

	compress := NewCompressFacade(eng, fs, zap.NewNop(), nil, Collaborators{
		Selector:  selectFunc(acceptSuggested),
		Runtime:   fixedOptions(zipOptions),
		Passwords: query,
	}, PostOptions{})
	report, err := compress.Run(t.Context(), Request{Sources: []string{filepath.Join(dir, "album")}, Password: true})
	require.NoError(t, err)
	assert.Equal(t, 1, query.calls)

	out := filepath.Join(t.TempDir(), "out")
	extractQuery := &countingQuery{answer: "hunter2"}
	extract := NewExtractFacade(eng, fs, zap.NewNop(), nil, Collaborators{
		Selector: selectFunc(func(context.Context, Request, string) (Destination, error) {
			return Destination{Path: out}, nil
		}),
		Runtime:   fixedOptions(RuntimeOptions{}),
		Passwords: extractQuery,
	}, PostOptions{}, ExtractOptions{Root: RootAuto, RestoreMetadata: true})

	_, err = extract.Run(t.Context(), Request{Sources: []string{report.Destination.Path}})
	require.NoError(t, err)
	assert.Equal(t, 1, extractQuery.calls)

	data, err := os.ReadFile(filepath.Join(out, "album", "2024", "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))
}

func TestRuntimePasswordSkipsQuery(t *testing.T) {
	eng, fs, dir := setup(t)
	query := &countingQuery{}
	opts := zipOptions
	opts.Password = "preset"

	facade := NewCompressFacade(eng, fs, zap.NewNop(), nil, Collaborators{
		Selector:  selectFunc(acceptSuggested),
		Runtime:   fixedOptions(opts),
		Passwords: query,
	}, PostOptions{})
	_, err := facade.Run(t.Context(), Request{Sources: []string{filepath.Join(dir, "doc.txt")}})
	require.NoError(t, err)
	assert.Zero(t, query.calls)

	r, err := archive.Open(t.Context(), eng, fs, filepath.Join(dir, "doc.zip"))
	require.NoError(t, err)
	defer r.Close()
	encrypted, err := r.Entries()[0].Encrypted()
	require.NoError(t, err)
	assert.True(t, encrypted)
}

func TestExtractFailures(t *testing.T) {
	eng, fs, dir := setup(t)
	collab := Collaborators{
		Selector:  selectFunc(acceptSuggested),
		Runtime:   fixedOptions(RuntimeOptions{}),
		Passwords: &countingQuery{},
	}

	tests := []struct {
		name    string
		sources []string
		wantErr error
	}{
		{name: "no archive", sources: nil, wantErr: archive.ErrContractViolation},
		{name: "two archives", sources: []string{"a.zip", "b.zip"}, wantErr: archive.ErrContractViolation},
		{name: "not an archive", sources: []string{filepath.Join(dir, "doc.txt")}, wantErr: engine.ErrUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			facade := NewExtractFacade(eng, fs, zap.NewNop(), nil, collab, PostOptions{}, ExtractOptions{Root: RootAuto, RestoreMetadata: true})
			report, err := facade.Run(t.Context(), Request{Sources: tt.sources})
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, StateFailed, report.State)

			var failure *Failure
			require.ErrorAs(t, err, &failure)
			assert.Equal(t, StatePreProcess, failure.State)
		})
	}
}

func TestSuggestArchivePath(t *testing.T) {
	tests := []struct {
		name    string
		sources []string
		format  engine.Format
		method  engine.Method
		want    string
	}{
		{name: "file", sources: []string{"/a/doc.txt"}, format: engine.FormatZip, want: "/a/doc.zip"},
		{name: "directory", sources: []string{"/a/album/", "/b/c"}, format: engine.FormatZip, want: "/a/album.zip"},
		{name: "tar default", sources: []string{"/a/album"}, format: engine.FormatTar, want: "/a/album.tar.gz"},
		{name: "tar zstd", sources: []string{"/a/album"}, format: engine.FormatTar, method: engine.MethodZstd, want: "/a/album.tar.zst"},
		{name: "dot file", sources: []string{"/a/.profile"}, format: engine.FormatZip, want: "/a/.profile.zip"},
		{name: "empty", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tt.want), SuggestArchivePath(fromSlash(tt.sources), tt.format, tt.method))
		})
	}
}

func fromSlash(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.FromSlash(p)
	}
	return out
}

func TestSuggestExtractDir(t *testing.T) {
	single := []archive.EntryInfo{{Path: "album", IsDir: true}, {Path: "album/a.jpg"}}
	several := []archive.EntryInfo{{Path: "a.txt"}, {Path: "b.txt"}}

	tests := []struct {
		name   string
		policy RootPolicy
		infos  []archive.EntryInfo
		want   string
	}{
		{name: "auto single root", policy: RootAuto, infos: single, want: "/x"},
		{name: "auto several roots", policy: RootAuto, infos: several, want: "/x/photos"},
		{name: "create", policy: RootCreate, infos: single, want: "/x/photos"},
		{name: "none", policy: RootNone, infos: several, want: "/x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SuggestExtractDir(filepath.FromSlash("/x/photos.tar.gz"), tt.policy, tt.infos)
			assert.Equal(t, filepath.FromSlash(tt.want), got)
		})
	}
}

func TestStateTransitions(t *testing.T) {
	m := machine{logger: zap.NewNop()}
	assert.Panics(t, func() { m.advance(StateDone) })

	m.advance(StatePreProcess)
	require.Error(t, m.reset())
	m.advance(StateProcessing)
	m.advance(StatePostProcess)
	assert.Panics(t, func() { m.advance(StateFailed) })
	m.advance(StateDone)
	assert.True(t, m.state.Terminal())
	require.NoError(t, m.reset())
	assert.Equal(t, StateIdle, m.state)
}

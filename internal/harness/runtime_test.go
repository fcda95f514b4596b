package harness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipefixture/internal/devpipeline"
	"pipefixture/internal/filetree"
	"pipefixture/internal/logger"
	"pipefixture/internal/testutils"
	"pipefixture/pkg/fixturetypes"
)

func waitRebuild(t *testing.T, r *fixturetypes.Rebuild) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.Wait(ctx)
}

func TestRuntime_ObservesRebuiltModule(t *testing.T) {
	h, root := newTestHarness(t, devpipeline.New(devpipeline.WithLogger(logger.Discard())))

	rt, err := h.StartRuntime(context.Background(), filetree.Tree{
		"index.js": "export const a = 1;",
	}, fixturetypes.Options{})
	require.NoError(t, err)
	defer func() { require.NoError(t, rt.Cleanup(context.Background())) }()

	mod, err := rt.Runtime().Import(context.Background(), "/index.js")
	require.NoError(t, err)
	assert.Equal(t, "1", mod.Exports["a"])

	rebuild, err := rt.WriteFile(context.Background(), "index.js", "export const a = 2;")
	require.NoError(t, err)
	require.NoError(t, waitRebuild(t, rebuild))

	mod, err = rt.Runtime().Import(context.Background(), "/index.js")
	require.NoError(t, err)
	assert.Equal(t, "2", mod.Exports["a"])

	files, err := rt.ReadFiles()
	require.NoError(t, err)
	assert.Equal(t, "export const a = 2;", files["index.js"])

	assert.Equal(t, rt.Root(), rt.Config().Root())
	assert.Equal(t, filepath.Join(rt.Root(), "build"), rt.Config().Out())
	assert.Len(t, testutils.ListDir(t, root), 1, "workspace lives until Cleanup")
}

func TestRuntime_WriteFileCreatesDirectoriesAndSubstitutes(t *testing.T) {
	p := testutils.NewFakePipeline()
	h, _ := newTestHarness(t, p)

	rt, err := h.StartRuntime(context.Background(), filetree.FromString("x"), fixturetypes.Options{})
	require.NoError(t, err)
	defer func() { _ = rt.Cleanup(context.Background()) }()

	rebuild, err := rt.WriteFile(context.Background(), "src/deep/config.json", `{"root": "%TEMP_TEST_DIRECTORY%"}`)
	require.NoError(t, err)
	require.NoError(t, waitRebuild(t, rebuild))

	data, err := os.ReadFile(filepath.Join(rt.Root(), "src", "deep", "config.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"root": "`+filepath.ToSlash(rt.Root())+`"}`, string(data))

	srv := p.LastServer()
	assert.Equal(t, []string{filepath.Join(rt.Root(), "src", "deep", "config.json")}, srv.Changed())

	files, err := rt.ReadFiles()
	require.NoError(t, err)
	assert.Equal(t, string(data), files["src/deep/config.json"])
}

func TestRuntime_WriteFileRejectsInvalidPath(t *testing.T) {
	h, _ := newTestHarness(t, testutils.NewFakePipeline())

	rt, err := h.StartRuntime(context.Background(), filetree.FromString("x"), fixturetypes.Options{})
	require.NoError(t, err)
	defer func() { _ = rt.Cleanup(context.Background()) }()

	_, err = rt.WriteFile(context.Background(), "../outside.js", "x")
	assert.ErrorIs(t, err, fixturetypes.ErrInvalidPath)
	assert.Equal(t, fixturetypes.StageSetup, fixturetypes.StageOf(err))
}

func TestRuntime_RebuildError(t *testing.T) {
	cause := errors.New("transform failed")
	p := testutils.NewFakePipeline()
	h, _ := newTestHarness(t, p)

	rt, err := h.StartRuntime(context.Background(), filetree.FromString("x"), fixturetypes.Options{})
	require.NoError(t, err)
	defer func() { _ = rt.Cleanup(context.Background()) }()

	p.LastServer().RebuildErr = cause
	rebuild, err := rt.WriteFile(context.Background(), "index.js", "y")
	require.NoError(t, err)
	assert.ErrorIs(t, waitRebuild(t, rebuild), cause)
}

func TestRuntime_Cleanup(t *testing.T) {
	p := testutils.NewFakePipeline()
	h, root := newTestHarness(t, p)

	rt, err := h.StartRuntime(context.Background(), filetree.FromString("x"), fixturetypes.Options{})
	require.NoError(t, err)

	srv := p.LastServer()
	var existedAtShutdown bool
	srv.OnShutdown = func() {
		_, statErr := os.Stat(rt.Root())
		existedAtShutdown = statErr == nil
	}

	require.NoError(t, rt.Cleanup(context.Background()))
	assert.True(t, existedAtShutdown, "server stops before the workspace is removed")
	assertNoWorkspaces(t, root)

	require.NoError(t, rt.Cleanup(context.Background()), "second cleanup is a no-op")
	assert.Equal(t, 1, srv.Shutdowns())

	_, err = rt.WriteFile(context.Background(), "index.js", "y")
	assert.ErrorIs(t, err, fixturetypes.ErrServerClosed)
	_, err = rt.ReadFiles()
	assert.ErrorIs(t, err, fixturetypes.ErrServerClosed)
	assertNoWorkspaces(t, root)
}

func TestRuntime_CleanupKeepsWorkspaceWhenShutdownFails(t *testing.T) {
	cause := errors.New("port still bound")
	p := testutils.NewFakePipeline()
	h, root := newTestHarness(t, p)

	rt, err := h.StartRuntime(context.Background(), filetree.FromString("x"), fixturetypes.Options{})
	require.NoError(t, err)
	srv := p.LastServer()
	srv.ShutdownErr = cause

	err = rt.Cleanup(context.Background())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, fixturetypes.StagePipeline, fixturetypes.StageOf(err))
	assert.DirExists(t, rt.Root(), "workspace stays while the server may still be running")

	_, err = rt.WriteFile(context.Background(), "index.js", "y")
	assert.ErrorIs(t, err, fixturetypes.ErrServerClosed)

	srv.ShutdownErr = nil
	require.NoError(t, rt.Cleanup(context.Background()), "cleanup can be retried")
	assertNoWorkspaces(t, root)
	assert.Equal(t, 2, srv.Shutdowns())

	require.NoError(t, rt.Cleanup(context.Background()))
	assert.Equal(t, 2, srv.Shutdowns(), "no shutdown after a successful cleanup")
}

func TestRuntime_CleanupWithCancelledContext(t *testing.T) {
	h, root := newTestHarness(t, devpipeline.New(devpipeline.WithLogger(logger.Discard())))

	rt, err := h.StartRuntime(context.Background(), filetree.Tree{
		"index.js": "export const a = 1;",
	}, fixturetypes.Options{})
	require.NoError(t, err)
	for i := 0; i < 16; i++ {
		_, err := rt.WriteFile(context.Background(), "index.js", "export const a = 2;")
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rt.Cleanup(ctx))

	time.Sleep(20 * time.Millisecond)
	assertNoWorkspaces(t, root)
}

func TestRuntime_StartFailureTearsDown(t *testing.T) {
	cause := errors.New("address in use")
	p := testutils.NewFakePipeline()
	p.StartErr = cause
	h, root := newTestHarness(t, p)

	rt, err := h.StartRuntime(context.Background(), filetree.FromString("x"), fixturetypes.Options{})
	assert.Nil(t, rt)
	var pipeErr *fixturetypes.PipelineError
	require.ErrorAs(t, err, &pipeErr)
	assert.ErrorIs(t, err, cause)
	assertNoWorkspaces(t, root)
	assert.NoError(t, rt.Cleanup(context.Background()), "cleanup of a failed start is a no-op")
}

func TestRuntime_ConfigFailureTearsDown(t *testing.T) {
	p := testutils.NewFakePipeline()
	p.RelativeOut = true
	h, root := newTestHarness(t, p)

	_, err := h.StartRuntime(context.Background(), filetree.FromString("x"), fixturetypes.Options{})
	assert.ErrorIs(t, err, fixturetypes.ErrOutputNotAbsolute)
	assert.Equal(t, []string{"load"}, p.Log.Calls())
	assertNoWorkspaces(t, root)
}

package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/adforge/copybot/pkg/adapter"
	"github.com/adforge/copybot/pkg/model"
	"github.com/adforge/copybot/pkg/repository"
	"github.com/adforge/copybot/pkg/usecase/router"
	"github.com/m-mizutani/gt"
)

func newSimulator() (*simulator, *bytes.Buffer) {
	var buf bytes.Buffer
	return &simulator{
		w:       &buf,
		console: adapter.NewConsole(&buf, simBot),
		router:  router.New(repository.NewMemory(), offlineClassifier{}),
	}, &buf
}

func TestSimulatorParse(t *testing.T) {
	sim, _ := newSimulator()

	ev, quit, err := sim.parse("hello world, our spring promo is live")
	gt.NoError(t, err)
	gt.False(t, quit)
	gt.Equal(t, ev.Kind, model.EventKindMessage)
	gt.Equal(t, ev.ParentTS, ev.MessageTS)
	gt.False(t, ev.IsThread)

	_, _, err = sim.parse(":thread 123.456")
	gt.NoError(t, err)
	ev, _, err = sim.parse("make 2 punchier")
	gt.NoError(t, err)
	gt.True(t, ev.IsThread)
	gt.Equal(t, ev.ThreadTS, "123.456")
	gt.Equal(t, ev.ParentTS, "123.456")

	_, _, err = sim.parse(":dm")
	gt.NoError(t, err)
	ev, _, err = sim.parse("setup")
	gt.NoError(t, err)
	gt.True(t, ev.IsDM)
	gt.False(t, ev.IsThread)

	ev, _, err = sim.parse(":join")
	gt.NoError(t, err)
	gt.Equal(t, ev.Kind, model.EventKindMemberJoined)
	gt.Equal(t, ev.ActorID, simBot)

	_, quit, _ = sim.parse(":quit")
	gt.True(t, quit)

	_, _, err = sim.parse(":thread")
	gt.Error(t, err)
}

func TestSimulatorUpload(t *testing.T) {
	sim, _ := newSimulator()
	path := filepath.Join(t.TempDir(), "ad.mp4")
	gt.NoError(t, os.WriteFile(path, []byte("video"), 0644))

	ev, _, err := sim.parse(":upload " + path)
	gt.NoError(t, err)
	gt.Equal(t, ev.Kind, model.EventKindFileUpload)
	gt.Equal(t, ev.File.Name, "ad.mp4")

	_, _, err = sim.parse(":upload /no/such/file.mp4")
	gt.Error(t, err)
}

func TestSimulatorRoutesWithoutDispatch(t *testing.T) {
	sim, buf := newSimulator()
	ev, _, err := sim.parse("help")
	gt.NoError(t, err)

	sim.handle(context.Background(), ev)
	gt.S(t, buf.String()).Contains("[route command via rules")
}

func TestNewTelemetrySinkValidatesTable(t *testing.T) {
	sink, err := newTelemetrySink(context.Background(), "")
	gt.NoError(t, err)
	gt.Nil(t, sink)

	_, err = newTelemetrySink(context.Background(), "dataset.table")
	gt.Error(t, err)
}

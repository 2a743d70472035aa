package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/dkeye/Consult/internal/config"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRooms struct{}

func (stubRooms) GetToken(context.Context) (string, error) { return "tok", nil }

func (stubRooms) CreateRoom(context.Context, string) (domain.MeetingID, error) {
	return "abcd-efgh-ijkl", nil
}

func (stubRooms) ValidateRoom(_ context.Context, id domain.MeetingID, _ string) (domain.MeetingID, error) {
	if id == "gone" {
		return "", domain.ErrRoomExpired
	}
	return id, nil
}

type stubDevices struct{}

func (stubDevices) Enumerate(context.Context) ([]domain.Device, error) {
	return []domain.Device{
		{ID: "cam-1", Label: "Front", Kind: domain.DeviceCamera},
		{ID: "mic-1", Label: "Built-in", Kind: domain.DeviceMicrophone},
	}, nil
}

func (stubDevices) OpenCamera(context.Context, string) (core.Track, error)     { return nil, nil }
func (stubDevices) OpenMicrophone(context.Context, string) (core.Track, error) { return nil, nil }
func (stubDevices) OpenScreen(context.Context) (core.Track, error)             { return nil, nil }

func run(t *testing.T, deps *Dependencies, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(deps)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func testDeps() *Dependencies {
	return &Dependencies{
		Config:  &config.Config{},
		Rooms:   stubRooms{},
		Devices: func() (core.Devices, error) { return stubDevices{}, nil },
	}
}

func TestDevicesCmd(t *testing.T) {
	out, err := run(t, testDeps(), "devices")
	require.NoError(t, err)
	assert.Contains(t, out, "cam-1")
	assert.Contains(t, out, "Built-in")
}

func TestDevicesCmd_DriverFailure(t *testing.T) {
	deps := testDeps()
	deps.Devices = func() (core.Devices, error) { return nil, errors.New("no drivers") }
	_, err := run(t, deps, "devices")
	assert.ErrorContains(t, err, "no drivers")
}

func TestRoomCmd(t *testing.T) {
	out, err := run(t, testDeps(), "room", "create")
	require.NoError(t, err)
	assert.Equal(t, "abcd-efgh-ijkl\n", out)

	out, err = run(t, testDeps(), "room", "validate", "abcd-efgh-ijkl")
	require.NoError(t, err)
	assert.Contains(t, out, "ok")

	_, err = run(t, testDeps(), "room", "validate", "gone")
	assert.ErrorIs(t, err, domain.ErrRoomExpired)

	_, err = run(t, testDeps(), "room", "validate")
	assert.Error(t, err)
}

package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/Aman-CERP/indexsync/internal/errors"
)

func TestReadPayload(t *testing.T) {
	file := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"id": 2}`), 0o644))

	tests := []struct {
		name    string
		stdin   string
		args    []string
		file    string
		want    string
		wantErr bool
	}{
		{name: "argument", args: []string{`{"id": 1}`}, want: `{"id": 1}`},
		{name: "file", file: file, want: `{"id": 2}`},
		{name: "stdin", stdin: `{"id": 3}`, file: "-", want: `{"id": 3}`},
		{name: "missing", wantErr: true},
		{name: "both", args: []string{`{}`}, file: file, wantErr: true},
		{name: "not json", args: []string{`{id: 1`}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := readPayload(strings.NewReader(tt.stdin), tt.args, tt.file)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, serrors.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestEnqueue_InvalidPayloadIsRejectedLocally(t *testing.T) {
	_, path := testConfig(t)

	_, err := runCLI(t, "enqueue", "listing", "INSERT", "not-json", "--config", path)

	assert.ErrorIs(t, err, serrors.ErrInvalidInput)
}

func TestQueueClear_RequiresName(t *testing.T) {
	_, err := runCLI(t, "queue", "clear")

	assert.Error(t, err)
}

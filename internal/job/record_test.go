package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/jobtrack/internal/apperrors"
	"github.com/kiranshivaraju/jobtrack/pkg/models"
)

func TestNewRecord(t *testing.T) {
	inputs := map[string]any{"genome": "G1"}
	r, err := NewRecord("j1", "annotate", inputs, WithAppVersion("1.0.0"), WithCellID("c9"))
	require.NoError(t, err)

	assert.Equal(t, "j1", r.JobID)
	assert.Equal(t, "annotate", r.AppID)
	assert.Equal(t, "1.0.0", r.AppVersion)
	assert.Equal(t, TagRelease, r.Tag)
	assert.Equal(t, "c9", r.CellID)
	assert.Equal(t, inputs, r.Inputs)

	inputs["genome"] = "changed"
	assert.Equal(t, "G1", r.Inputs["genome"], "record must not alias caller inputs")
}

func TestNewRecord_NilInputs(t *testing.T) {
	r, err := NewRecord("j1", "annotate", nil)
	require.NoError(t, err)
	assert.NotNil(t, r.Inputs)
}

func TestNewRecord_Validation(t *testing.T) {
	tests := []struct {
		name  string
		jobID string
		appID string
		tag   string
		field string
	}{
		{"missing job id", "", "app", "", "job_id"},
		{"missing app id", "j1", "", "", "app_id"},
		{"bad tag", "j1", "app", "nightly", "tag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRecord(tt.jobID, tt.appID, nil, WithTag(tt.tag))
			require.ErrorIs(t, err, apperrors.ErrValidation)
			var appErr *apperrors.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestFromState_NoRemoteCalls(t *testing.T) {
	client := &fakeClient{state: "running"}
	info := models.JobParams{Params: map[string]any{"k": "v"}, ServiceVersion: "abc123"}

	r, err := FromState("j1", info, "annotate", "beta", "c1")
	require.NoError(t, err)
	f := NewFacade(r, Deps{Client: client})

	assert.Equal(t, 0, client.callCount())
	assert.Equal(t, "abc123", f.Record().AppVersion)
	assert.Equal(t, "beta", f.Record().Tag)
	assert.Equal(t, "c1", f.Record().CellID)
	assert.Equal(t, map[string]any{"k": "v"}, f.Record().Inputs)
}

func TestRecordModelRoundTrip(t *testing.T) {
	r, err := NewRecord("j1", "annotate", map[string]any{"k": 1.0}, WithTag(TagDev), WithAppVersion("v2"), WithCellID("c"))
	require.NoError(t, err)

	back, err := FromModel(r.Model())
	require.NoError(t, err)
	assert.Equal(t, r, back)
}

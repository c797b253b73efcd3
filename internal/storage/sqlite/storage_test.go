package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/arachne/internal/common"
	"github.com/ternarybob/arachne/internal/interfaces"
	"github.com/ternarybob/arachne/internal/models"
)

func setupManager(t *testing.T) interfaces.StorageManager {
	t.Helper()

	config := &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "test.db"),
		WALMode:       false,
		BusyTimeoutMS: 5000,
		CacheSizeMB:   10,
	}

	manager, err := NewManager(arbor.NewLogger(), config)
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestWorkflowStorage_SaveLoadRoundTrip(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()
	storage := m.WorkflowStorage()

	actions := []*models.Action{
		{Type: models.ActionTypeNavigate, Name: "open", URL: "https://example.com"},
		{Type: models.ActionTypeWait, Name: "pause", DurationSeconds: 0.5},
	}
	require.NoError(t, storage.Save(ctx, "smoke", actions))

	loaded, err := storage.Load(ctx, "smoke")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, "open", loaded[0].Name)
	assert.Equal(t, 0.5, loaded[1].DurationSeconds)

	// Upsert replaces the action list
	require.NoError(t, storage.Save(ctx, "smoke", actions[:1]))
	loaded, err = storage.Load(ctx, "smoke")
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestWorkflowStorage_CreateConflict(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()
	storage := m.WorkflowStorage()

	require.NoError(t, storage.Create(ctx, "fresh"))

	err := storage.Create(ctx, "fresh")
	require.Error(t, err)
	var rerr *common.RepositoryError
	assert.ErrorAs(t, err, &rerr)
}

func TestWorkflowStorage_DeleteListMetadata(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()
	storage := m.WorkflowStorage()

	require.NoError(t, storage.Create(ctx, "b_flow"))
	require.NoError(t, storage.Create(ctx, "a_flow"))

	names, err := storage.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a_flow", "b_flow"}, names)

	md, err := storage.GetMetadata(ctx, "a_flow")
	require.NoError(t, err)
	require.NotNil(t, md)
	assert.Equal(t, "a_flow", md.Name)

	deleted, err := storage.Delete(ctx, "a_flow")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = storage.Delete(ctx, "a_flow")
	require.NoError(t, err)
	assert.False(t, deleted)

	md, err = storage.GetMetadata(ctx, "a_flow")
	require.NoError(t, err)
	assert.Nil(t, md)
}

func TestTemplateStorage_RoundTrip(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()
	storage := m.TemplateStorage()

	payload := `[{"type": "click", "name": "go", "selector": "#go"}]`
	require.NoError(t, storage.SaveTemplate(ctx, "login", payload))

	tpl, err := storage.LoadTemplate(ctx, "login")
	require.NoError(t, err)
	require.NotNil(t, tpl)
	assert.Equal(t, payload, tpl.ActionsData)

	missing, err := storage.LoadTemplate(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	deleted, err := storage.DeleteTemplate(ctx, "login")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestTemplateStorage_RejectsMalformedPayload(t *testing.T) {
	m := setupManager(t)

	err := m.TemplateStorage().SaveTemplate(context.Background(), "bad", "not json")
	require.Error(t, err)
}

func TestCredentialStorage_RoundTrip(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()
	storage := m.CredentialStorage()

	cred := &models.Credential{Name: "gmail", Username: "bob@example.com", PasswordHash: "pbkdf2:sha256:600000$ab$cd"}
	require.NoError(t, storage.SaveCredential(ctx, cred))

	loaded, err := storage.GetCredential(ctx, "gmail")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "bob@example.com", loaded.Username)

	names, err := storage.ListCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"gmail"}, names)

	deleted, err := storage.DeleteCredential(ctx, "gmail")
	require.NoError(t, err)
	assert.True(t, deleted)

	loaded, err = storage.GetCredential(ctx, "gmail")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestExecutionLogStorage_AppendOnlyAndSummaries(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()
	storage := m.ExecutionLogStorage()

	base := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	var firstID string
	for i := 0; i < 3; i++ {
		log := &models.ExecutionLog{
			ID:              common.NewExecutionID(),
			WorkflowName:    "daily",
			StartTime:       base.Add(time.Duration(i) * time.Hour),
			EndTime:         base.Add(time.Duration(i)*time.Hour + time.Minute),
			DurationSeconds: 60,
			FinalStatus:     models.StatusSuccess,
			ActionResults:   []models.ActionResult{{ActionName: "open", ActionType: "navigate", Status: models.ActionStatusSuccess}},
		}
		if i == 0 {
			firstID = log.ID
		}
		require.NoError(t, storage.SaveLog(ctx, log))
	}

	loaded, err := storage.GetLog(ctx, firstID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Len(t, loaded.ActionResults, 1)
	assert.Equal(t, "open", loaded.ActionResults[0].ActionName)

	summaries, err := storage.ListSummaries(ctx, "daily", 2)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.True(t, summaries[0].StartTime.After(summaries[1].StartTime))

	// Re-inserting the same ID is rejected: logs are append-only
	dup := &models.ExecutionLog{ID: firstID, WorkflowName: "daily", StartTime: base, FinalStatus: models.StatusSuccess}
	err = storage.SaveLog(ctx, dup)
	require.Error(t, err)
}

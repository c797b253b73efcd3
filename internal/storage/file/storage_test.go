package file

import (
	"context"
	"os"
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
	tempDir := t.TempDir()

	config := &common.FileStoreConfig{
		WorkflowsDir:    filepath.Join(tempDir, "workflows"),
		CredentialsPath: filepath.Join(tempDir, "credentials.json"),
		CreateIfMissing: true,
	}

	manager, err := NewManager(arbor.NewLogger(), config)
	require.NoError(t, err)
	return manager
}

func sampleActions(t *testing.T) []*models.Action {
	t.Helper()
	return []*models.Action{
		{Type: models.ActionTypeNavigate, Name: "open", URL: "https://example.com"},
		{Type: models.ActionTypeClick, Name: "go", Selector: "#go"},
	}
}

func TestWorkflowStorage_SaveLoadRoundTrip(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()
	storage := m.WorkflowStorage()

	require.NoError(t, storage.Save(ctx, "smoke", sampleActions(t)))

	actions, err := storage.Load(ctx, "smoke")
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "open", actions[0].Name)
	assert.Equal(t, models.ActionTypeClick, actions[1].Type)
}

func TestWorkflowStorage_LoadMissingReturnsNil(t *testing.T) {
	m := setupManager(t)

	actions, err := m.WorkflowStorage().Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, actions)
}

func TestWorkflowStorage_CreateRejectsExisting(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()
	storage := m.WorkflowStorage()

	require.NoError(t, storage.Create(ctx, "fresh"))

	actions, err := storage.Load(ctx, "fresh")
	require.NoError(t, err)
	assert.Empty(t, actions)

	err = storage.Create(ctx, "fresh")
	require.Error(t, err)
	var rerr *common.RepositoryError
	assert.ErrorAs(t, err, &rerr)
}

func TestWorkflowStorage_InvalidNameRejected(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()

	err := m.WorkflowStorage().Save(ctx, "../escape", sampleActions(t))
	require.Error(t, err)
	var verr *common.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestWorkflowStorage_DeleteAndList(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()
	storage := m.WorkflowStorage()

	require.NoError(t, storage.Save(ctx, "b_flow", sampleActions(t)))
	require.NoError(t, storage.Save(ctx, "a_flow", sampleActions(t)))

	names, err := storage.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a_flow", "b_flow"}, names)

	deleted, err := storage.Delete(ctx, "a_flow")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = storage.Delete(ctx, "a_flow")
	require.NoError(t, err)
	assert.False(t, deleted)

	names, err = storage.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b_flow"}, names)
}

func TestWorkflowStorage_Metadata(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()
	storage := m.WorkflowStorage()

	require.NoError(t, storage.Save(ctx, "meta", sampleActions(t)))

	md, err := storage.GetMetadata(ctx, "meta")
	require.NoError(t, err)
	require.NotNil(t, md)
	assert.Equal(t, "meta", md.Name)
	assert.Greater(t, md.Size, int64(0))

	md, err = storage.GetMetadata(ctx, "missing")
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

	names, err := storage.ListTemplates(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"login"}, names)

	deleted, err := storage.DeleteTemplate(ctx, "login")
	require.NoError(t, err)
	assert.True(t, deleted)

	tpl, err = storage.LoadTemplate(ctx, "login")
	require.NoError(t, err)
	assert.Nil(t, tpl)
}

func TestTemplateStorage_RejectsMalformedPayload(t *testing.T) {
	m := setupManager(t)

	err := m.TemplateStorage().SaveTemplate(context.Background(), "bad", "{not an array")
	require.Error(t, err)
}

func TestTemplateStorage_FilesLiveUnderTemplatesDir(t *testing.T) {
	tempDir := t.TempDir()
	config := &common.FileStoreConfig{
		WorkflowsDir:    tempDir,
		CredentialsPath: filepath.Join(tempDir, "credentials.json"),
		CreateIfMissing: true,
	}
	m, err := NewManager(arbor.NewLogger(), config)
	require.NoError(t, err)
	ctx := context.Background()

	payload := `[{"type": "click", "name": "go", "selector": "#go"}]`
	require.NoError(t, m.TemplateStorage().SaveTemplate(ctx, "login", payload))

	_, err = os.Stat(filepath.Join(tempDir, "templates", "login.json"))
	assert.NoError(t, err)

	// Templates do not appear in the workflow listing
	names, err := m.WorkflowStorage().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
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
	assert.Equal(t, cred.Username, loaded.Username)
	assert.Equal(t, cred.PasswordHash, loaded.PasswordHash)

	// Upsert replaces
	cred.Username = "new@example.com"
	require.NoError(t, storage.SaveCredential(ctx, cred))
	loaded, err = storage.GetCredential(ctx, "gmail")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", loaded.Username)

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

func TestExecutionLogStorage_SaveAndList(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()
	storage := m.ExecutionLogStorage()

	base := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	for i, status := range []models.ExecutionStatus{models.StatusSuccess, models.StatusFailed, models.StatusSuccess} {
		log := &models.ExecutionLog{
			ID:            common.NewExecutionID(),
			WorkflowName:  "daily",
			StartTime:     base.Add(time.Duration(i) * time.Hour),
			EndTime:       base.Add(time.Duration(i)*time.Hour + time.Minute),
			FinalStatus:   status,
			ActionResults: []models.ActionResult{{ActionName: "open", ActionType: "navigate", Status: models.ActionStatusSuccess}},
		}
		require.NoError(t, storage.SaveLog(ctx, log))
	}

	other := &models.ExecutionLog{
		ID:           common.NewExecutionID(),
		WorkflowName: "weekly",
		StartTime:    base.Add(30 * time.Minute),
		FinalStatus:  models.StatusSuccess,
	}
	require.NoError(t, storage.SaveLog(ctx, other))

	summaries, err := storage.ListSummaries(ctx, "daily", 0)
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	// Newest first
	assert.True(t, summaries[0].StartTime.After(summaries[1].StartTime))
	assert.True(t, summaries[1].StartTime.After(summaries[2].StartTime))

	summaries, err = storage.ListSummaries(ctx, "daily", 2)
	require.NoError(t, err)
	assert.Len(t, summaries, 2)

	summaries, err = storage.ListSummaries(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, summaries, 4)
}

func TestExecutionLogStorage_GetLogByID(t *testing.T) {
	m := setupManager(t)
	ctx := context.Background()
	storage := m.ExecutionLogStorage()

	log := &models.ExecutionLog{
		ID:           common.NewExecutionID(),
		WorkflowName: "daily",
		StartTime:    time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC),
		FinalStatus:  models.StatusSuccess,
	}
	require.NoError(t, storage.SaveLog(ctx, log))

	loaded, err := storage.GetLog(ctx, log.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "daily", loaded.WorkflowName)

	loaded, err = storage.GetLog(ctx, "exec_missing")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

package factory

import (
	"log/slog"
	"net/http/httptest"
	"time"

	"github.com/mcoot/biogames-go/internal/client"
	"github.com/mcoot/biogames-go/internal/dependencies/mocks"
	"github.com/mcoot/biogames-go/internal/storage/memory"
	"github.com/mcoot/biogames-go/internal/testutil/fakeapi"
)

// TestApp extends App with a fake scoring API and mocked dependencies
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom

	API    *fakeapi.Server
	Server *httptest.Server
}

// NewTestApp creates an App backed by an in-process fake API. Close shuts the fake down.
func NewTestApp(logger *slog.Logger) *TestApp {
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))
	mockRandom := mocks.NewMockRandom()
	api := fakeapi.New(mockRandom)
	server := httptest.NewServer(api)

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	app := newWithDependencies(memory.New(), mockClock, client.New(server.URL, server.Client()), Config{SessionKey: "test-session"}, logger)

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
		API:        api,
		Server:     server,
	}
}

// Close stops the fake API after the app
func (t *TestApp) Close() error {
	err := t.App.Close()
	t.Server.Close()
	return err
}

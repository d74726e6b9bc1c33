package settings

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/userfetch/userfetch/internal/application/contracts"
	"github.com/userfetch/userfetch/internal/domain/entities"
	"github.com/userfetch/userfetch/internal/infrastructure/secretbox"
	"github.com/userfetch/userfetch/internal/shared/errors"
)

func newTestService(t *testing.T, policy PathPolicy) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	if policy.DefaultRoot == "" {
		policy.DefaultRoot = filepath.Join(dir, "downloads")
	}
	file := filepath.Join(dir, "settings.json")
	box := secretbox.New(filepath.Join(dir, "secret.key"), "TEST_SETTINGS_KEY")
	svc, err := NewService(file, box, policy)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc, file
}

func TestDefaultsWrittenOnFirstLoad(t *testing.T) {
	svc, file := newTestService(t, PathPolicy{})

	if _, err := os.Stat(file); err != nil {
		t.Fatalf("settings file not created: %v", err)
	}

	resp, err := svc.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if resp.Settings.MaxTasks != 3 || resp.Settings.Naming != "{create}_{desc}" {
		t.Errorf("unexpected defaults: %+v", resp.Settings)
	}
	if resp.HasCookie {
		t.Error("fresh settings should have no cookie")
	}
}

func TestCookieEncryptedAtRestAndHiddenFromResponse(t *testing.T) {
	svc, file := newTestService(t, PathPolicy{})

	next := entities.DefaultSettings("")
	next.Cookie = "sessionid=topsecret"
	resp, err := svc.Update(context.Background(), contracts.SettingsUpdateRequest{Settings: next})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if resp.Settings.Cookie != "" {
		t.Error("cookie must not appear in API response")
	}
	if !resp.HasCookie {
		t.Error("HasCookie should be true after update")
	}

	raw, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "topsecret") {
		t.Error("cookie persisted in plaintext")
	}
	var onDisk entities.DownloaderSettings
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(onDisk.Cookie, secretbox.EncryptedPrefix) {
		t.Errorf("cookie on disk missing encryption prefix: %s", onDisk.Cookie)
	}

	current, err := svc.Current(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if current.Cookie != "sessionid=topsecret" {
		t.Errorf("Current returned wrong cookie: %s", current.Cookie)
	}
}

func TestEmptyCookieKeepsExisting(t *testing.T) {
	svc, _ := newTestService(t, PathPolicy{})

	withCookie := entities.DefaultSettings("")
	withCookie.Cookie = "keep-me"
	if _, err := svc.Update(context.Background(), contracts.SettingsUpdateRequest{Settings: withCookie}); err != nil {
		t.Fatal(err)
	}

	noCookie := entities.DefaultSettings("")
	noCookie.PageCounts = 50
	if _, err := svc.Update(context.Background(), contracts.SettingsUpdateRequest{Settings: noCookie}); err != nil {
		t.Fatal(err)
	}

	current, err := svc.Current(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if current.Cookie != "keep-me" {
		t.Errorf("empty cookie in update must keep existing, got %q", current.Cookie)
	}
	if current.PageCounts != 50 {
		t.Errorf("other fields not updated: %d", current.PageCounts)
	}
}

func TestInvalidNamingRejected(t *testing.T) {
	svc, _ := newTestService(t, PathPolicy{})

	bad := entities.DefaultSettings("")
	bad.Naming = "{create}/{evil}"
	_, err := svc.Update(context.Background(), contracts.SettingsUpdateRequest{Settings: bad})
	if errors.CodeOf(err) != errors.ErrorCodeInvalidRequest {
		t.Errorf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestRestrictedDownloadPath(t *testing.T) {
	root := t.TempDir()
	allowed := filepath.Join(root, "media")
	svc, _ := newTestService(t, PathPolicy{
		DefaultRoot:  allowed,
		AllowedRoots: []string{allowed},
		Restricted:   true,
	})

	ok := entities.DefaultSettings("")
	ok.DownloadPath = filepath.Join(allowed, "douyin")
	if _, err := svc.Update(context.Background(), contracts.SettingsUpdateRequest{Settings: ok}); err != nil {
		t.Fatalf("path under allowed root rejected: %v", err)
	}

	escape := entities.DefaultSettings("")
	escape.DownloadPath = filepath.Join(root, "elsewhere")
	_, err := svc.Update(context.Background(), contracts.SettingsUpdateRequest{Settings: escape})
	if errors.CodeOf(err) != errors.ErrorCodeInvalidRequest {
		t.Errorf("expected INVALID_REQUEST for escaping path, got %v", err)
	}
}

func TestRelativePathResolvedUnderDefaultRoot(t *testing.T) {
	svc, _ := newTestService(t, PathPolicy{})

	req := entities.DefaultSettings("")
	req.DownloadPath = "sub/dir"
	resp, err := svc.Update(context.Background(), contracts.SettingsUpdateRequest{Settings: req})
	if err != nil {
		t.Fatal(err)
	}
	if !filepath.IsAbs(resp.Settings.DownloadPath) {
		t.Errorf("download path not absolute: %s", resp.Settings.DownloadPath)
	}
	if !strings.HasSuffix(resp.Settings.DownloadPath, filepath.Join("sub", "dir")) {
		t.Errorf("relative path not joined under root: %s", resp.Settings.DownloadPath)
	}
}

func TestSettingsSurviveReload(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "settings.json")
	keyFile := filepath.Join(dir, "secret.key")
	policy := PathPolicy{DefaultRoot: filepath.Join(dir, "downloads")}

	first, err := NewService(file, secretbox.New(keyFile, "TEST_SETTINGS_KEY"), policy)
	if err != nil {
		t.Fatal(err)
	}
	update := entities.DefaultSettings("")
	update.Cookie = "persisted-cookie"
	update.UserList = []entities.UserTarget{{Name: "甲", URL: "https://example.com/u/1"}}
	if _, err := first.Update(context.Background(), contracts.SettingsUpdateRequest{Settings: update}); err != nil {
		t.Fatal(err)
	}

	second, err := NewService(file, secretbox.New(keyFile, "TEST_SETTINGS_KEY"), policy)
	if err != nil {
		t.Fatal(err)
	}
	current, err := second.Current(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if current.Cookie != "persisted-cookie" {
		t.Errorf("cookie lost across reload: %q", current.Cookie)
	}
	if len(current.UserList) != 1 || current.UserList[0].Name != "甲" {
		t.Errorf("user list lost across reload: %+v", current.UserList)
	}
}

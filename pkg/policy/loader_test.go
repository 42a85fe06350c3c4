package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openfroyo/cedarbridge/pkg/config"
)

const storeJSON = `{
  "cedar_version": "v4.0.0",
  "policy_stores": {
    "s1": {
      "name": "json store",
      "policies": {
        "p1": {"description": "everyone", "policy_content": "permit(principal, action, resource);"}
      }
    }
  }
}`

const storeYAML = `cedar_version: v4.0.0
policy_stores:
  s1:
    name: yaml store
    policies:
      p1:
        policy_content: permit(principal, action, resource);
    guards:
      - name: network
        severity: critical
        rego: |
          package guards.network
          import rego.v1
          deny contains "no" if input.context.ip == "10.0.0.1"
`

func TestLoader_Load(t *testing.T) {
	loader := NewLoader(testLogger())
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "store.json")
	yamlPath := filepath.Join(dir, "store.yaml")
	if err := os.WriteFile(jsonPath, []byte(storeJSON), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	if err := os.WriteFile(yamlPath, []byte(storeYAML), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	tests := []struct {
		name     string
		cfg      config.PolicyStoreConfig
		wantName string
	}{
		{"inline json", config.PolicyStoreConfig{Source: config.PolicyStoreJSON, Data: storeJSON}, "json store"},
		{"inline yaml", config.PolicyStoreConfig{Source: config.PolicyStoreYAML, Data: storeYAML}, "yaml store"},
		{"json file", config.PolicyStoreConfig{Source: config.PolicyStoreFileJSON, Path: jsonPath}, "json store"},
		{"yaml file", config.PolicyStoreConfig{Source: config.PolicyStoreFileYAML, Path: yamlPath}, "yaml store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := loader.Load(tt.cfg)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			_, store, err := doc.Single()
			if err != nil {
				t.Fatalf("Single() error = %v", err)
			}
			if store.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", store.Name, tt.wantName)
			}
			if store.Policies["p1"].Content != "permit(principal, action, resource);" {
				t.Errorf("p1 = %+v", store.Policies["p1"])
			}
		})
	}
}

func TestLoader_YAMLGuards(t *testing.T) {
	doc, err := ParseDocument([]byte(storeYAML), config.FormatYAML)
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}
	eng, err := NewEngine(context.Background(), doc, testLogger())
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	res := eng.Guard(context.Background(), &GuardInput{Context: map[string]any{"ip": "10.0.0.1"}})
	if res.Allowed || len(res.Violations) != 1 || res.Violations[0].Severity != SeverityCritical {
		t.Errorf("Guard() = %+v", res)
	}
}

func TestLoader_Errors(t *testing.T) {
	loader := NewLoader(testLogger())

	tests := []struct {
		name  string
		cfg   config.PolicyStoreConfig
		check func(error) bool
	}{
		{
			name:  "lock master",
			cfg:   config.PolicyStoreConfig{Source: config.PolicyStoreLockMaster, Data: "store-id"},
			check: func(err error) bool { return errors.Is(err, ErrUnsupportedSource) },
		},
		{
			name:  "unknown field",
			cfg:   config.PolicyStoreConfig{Source: config.PolicyStoreJSON, Data: `{"policy_stores":{},"extra":1}`},
			check: func(err error) bool { return err != nil },
		},
		{
			name:  "bad yaml",
			cfg:   config.PolicyStoreConfig{Source: config.PolicyStoreYAML, Data: "policy_stores: ["},
			check: func(err error) bool { return err != nil },
		},
		{
			name:  "missing file",
			cfg:   config.PolicyStoreConfig{Source: config.PolicyStoreFileJSON, Path: filepath.Join(t.TempDir(), "none.json")},
			check: func(err error) bool { return errors.Is(err, os.ErrNotExist) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loader.Load(tt.cfg)
			if err == nil || !tt.check(err) {
				t.Errorf("Load() error = %v", err)
			}
		})
	}
}

func TestLoader_Watch(t *testing.T) {
	loader := NewLoader(testLogger())
	loader.SetReloadDelay(100 * time.Millisecond)

	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte(storeJSON), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Document, 4)
	failed := make(chan error, 4)
	err := loader.Watch(ctx, path, config.FormatJSON, func(doc *Document) error {
		reloaded <- doc
		return nil
	}, func(err error) {
		failed <- err
	})
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	defer func() {
		if err := loader.StopWatching(); err != nil {
			t.Errorf("StopWatching() error = %v", err)
		}
	}()

	updated := `{"policy_stores":{"s2":{"policies":{}}}}`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("Failed to rewrite test file: %v", err)
	}

	select {
	case doc := <-reloaded:
		if _, ok := doc.PolicyStores["s2"]; !ok {
			t.Errorf("reloaded document = %+v", doc)
		}
	case err := <-failed:
		t.Fatalf("reload failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatalf("Failed to rewrite test file: %v", err)
	}
	select {
	case err := <-failed:
		if err == nil {
			t.Error("expected reload error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload failure")
	}
}

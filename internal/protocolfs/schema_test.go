package protocolfs_test

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"idealcity/internal/model"
	"idealcity/internal/protocolfs"
)

func TestIntentEnvelope_ValidatesSchema(t *testing.T) {
	schema, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "manifestation_intent.schema.json"))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	env := model.IntentEnvelope{
		PlayerID: "p1",
		Intent: protocolfs.NewIntent("harbor_light", "1", 2, 0.94,
			[]string{"不得遮挡现有航道"}, []string{"理想之城：以公共利益为先的试验场"}, 30*time.Minute),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := schema.Validate(doc); err != nil {
		t.Fatalf("validate: %v\npayload: %s", err, raw)
	}
}

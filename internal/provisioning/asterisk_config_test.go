package provisioning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"autodialer/internal/config"
)

func TestDialplanEmitsCallEnd(t *testing.T) {
	cfg := config.Default()
	plan := Dialplan(cfg.Asterisk)

	for _, want := range []string{
		"[llamada_automatica]",
		"exten => h,1,",
		"UserEvent(CallEnd,call_id: ${CALL_ID},status: ${CALL_STATUS}",
	} {
		if !strings.Contains(plan, want) {
			t.Errorf("dialplan missing %q:\n%s", want, plan)
		}
	}
	if strings.Contains(plan, "System(") {
		t.Error("writeback disabled, System() should not be emitted")
	}

	cfg.Asterisk.WritebackDir = "/var/spool/autodialer/done"
	plan = Dialplan(cfg.Asterisk)
	if !strings.Contains(plan, "> /var/spool/autodialer/done/${CALL_ID}.end") {
		t.Errorf("writeback signal missing:\n%s", plan)
	}
}

func TestInstallIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	custom := filepath.Join(dir, customFile)
	if err := os.WriteFile(custom, []byte("[from-internal-custom]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.AMI.Enabled = true
	cfg.AMI.Username = "autodialer"
	cfg.AMI.Secret = "s3cret"

	changed, err := Install(dir, cfg)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if len(changed) != 3 {
		t.Fatalf("changed = %v, want dialplan, include and manager", changed)
	}

	content, _ := os.ReadFile(custom)
	if !strings.HasPrefix(string(content), "[from-internal-custom]") || !strings.Contains(string(content), "#include "+dialplanFile) {
		t.Errorf("custom file = %q", content)
	}
	mgr, _ := os.ReadFile(filepath.Join(dir, "manager.d", managerFile))
	if !strings.Contains(string(mgr), "[autodialer]\nsecret=s3cret") {
		t.Errorf("manager = %q", mgr)
	}

	changed, err = Install(dir, cfg)
	if err != nil {
		t.Fatalf("second Install: %v", err)
	}
	if len(changed) != 0 {
		t.Errorf("second Install changed %v", changed)
	}
}

package provisioning

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"autodialer/internal/config"
)

const (
	dialplanFile = "extensions_autodialer.conf"
	managerFile  = "autodialer.conf"
	customFile   = "extensions_custom.conf"
)

// Dialplan genera el contexto que reproduce el audio y, al colgar, emite el
// UserEvent CallEnd que consume el ingestor. Con writeback_dir configurado
// además deja la misma señal como archivo.
func Dialplan(cfg config.AsteriskConfig) string {
	var sb strings.Builder
	sb.WriteString("; Generado automáticamente por Autodialer\n\n")
	fmt.Fprintf(&sb, "[%s]\n", cfg.Context)
	sb.WriteString("exten => s,1,Answer()\n")
	sb.WriteString(" same => n,Set(CALL_STATUS=SUCCESS)\n")
	sb.WriteString(" same => n,Playback(${AUDIO})\n")
	sb.WriteString(" same => n,Hangup()\n\n")

	sb.WriteString("exten => failed,1,Set(CALL_STATUS=FAILED)\n")
	sb.WriteString(" same => n,Hangup()\n\n")

	sb.WriteString("exten => h,1,ExecIf($[\"${CALL_STATUS}\" = \"\"]?Set(CALL_STATUS=FAILED))\n")
	sb.WriteString(" same => n,UserEvent(CallEnd,call_id: ${CALL_ID},status: ${CALL_STATUS},uniqueid: ${UNIQUEID},campaign_id: ${CAMPAIGN_ID})\n")
	if cfg.WritebackDir != "" {
		signal := filepath.Join(cfg.WritebackDir, "${CALL_ID}.end")
		fmt.Fprintf(&sb, " same => n,System(printf 'userevent=CallEnd\\nexten=h\\ncall_id=${CALL_ID}\\nstatus=${CALL_STATUS}\\nuniqueid=${UNIQUEID}\\ncampaign_id=${CAMPAIGN_ID}\\n' > %s)\n", signal)
	}
	return sb.String()
}

// Manager genera el usuario AMI con el que se conecta el cliente.
func Manager(cfg config.AMIConfig) string {
	return fmt.Sprintf(`; Generado automáticamente por Autodialer
[%s]
secret=%s
deny=0.0.0.0/0.0.0.0
permit=127.0.0.1/255.255.255.0
read=all
write=all
`, cfg.Username, cfg.Secret)
}

// Install escribe el dialplan (y el usuario AMI si está habilitado) bajo dir,
// que normalmente es /etc/asterisk. Devuelve los archivos que cambiaron.
func Install(dir string, cfg *config.Config) ([]string, error) {
	var changed []string

	path := filepath.Join(dir, dialplanFile)
	ok, err := writeIfChanged(path, Dialplan(cfg.Asterisk))
	if err != nil {
		return changed, err
	}
	if ok {
		changed = append(changed, path)
	}

	custom := filepath.Join(dir, customFile)
	ok, err = ensureInclude(custom, dialplanFile)
	if err != nil {
		return changed, err
	}
	if ok {
		changed = append(changed, custom)
	}

	if cfg.AMI.Enabled {
		managerDir := filepath.Join(dir, "manager.d")
		if err := os.MkdirAll(managerDir, 0755); err != nil {
			return changed, fmt.Errorf("no existe manager.d y no se pudo crear: %w", err)
		}
		path := filepath.Join(managerDir, managerFile)
		ok, err := writeIfChanged(path, Manager(cfg.AMI))
		if err != nil {
			return changed, err
		}
		if ok {
			changed = append(changed, path)
		}
	}

	for _, c := range changed {
		log.Printf("[Provisioner] ✓ %s actualizado", c)
	}
	return changed, nil
}

func writeIfChanged(path, content string) (bool, error) {
	existing, _ := os.ReadFile(path)
	if string(existing) == content {
		return false, nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return false, fmt.Errorf("no se pudo escribir %s: %w", path, err)
	}
	return true, nil
}

// ensureInclude agrega "#include name" a path si aún no lo contiene.
func ensureInclude(path, name string) (bool, error) {
	line := "#include " + name
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, os.WriteFile(path, []byte(line+"\n"), 0644)
		}
		return false, fmt.Errorf("error leyendo %s: %w", path, err)
	}
	if strings.Contains(string(content), name) {
		return false, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return false, fmt.Errorf("error abriendo %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString("\n" + line + "\n"); err != nil {
		return false, fmt.Errorf("error escribiendo en %s: %w", path, err)
	}
	return true, nil
}

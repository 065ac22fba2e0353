package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	apiHost string
	client  = &http.Client{Timeout: 30 * time.Second}
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "autodialer-cli",
		Short: "CLI para administrar Autodialer",
		Long:  `Una herramienta de línea de comandos para lanzar campañas y consultar el marcador de forma remota.`,
	}

	rootCmd.PersistentFlags().StringVar(&apiHost, "host", "http://localhost:3000", "URL base de la API")

	// === CAMPAÑAS ===
	var campaignCmd = &cobra.Command{
		Use:   "campaign",
		Short: "Gestionar campañas",
	}

	var campaignStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Iniciar una campaña",
		RunE:  runCampaignStart,
	}
	campaignStartCmd.Flags().String("name", "", "Nombre de la campaña (requerido)")
	campaignStartCmd.Flags().String("audio", "", "URL o ruta del audio (requerido)")
	campaignStartCmd.Flags().StringSlice("numbers", nil, "Números separados por coma")
	campaignStartCmd.Flags().String("file", "", "Archivo con un número por línea")

	var campaignSummaryCmd = &cobra.Command{
		Use:   "summary [id]",
		Short: "Resumen de llamadas por estado",
		Args:  cobra.ExactArgs(1),
		RunE:  runCampaignSummary,
	}

	var campaignCallsCmd = &cobra.Command{
		Use:   "calls [id]",
		Short: "Listar llamadas de una campaña",
		Args:  cobra.ExactArgs(1),
		RunE:  runCampaignCalls,
	}
	campaignCallsCmd.Flags().Int("limit", 100, "Máximo de llamadas")

	campaignCmd.AddCommand(campaignStartCmd, campaignSummaryCmd, campaignCallsCmd)

	// === SEÑALES ===
	var signalsCmd = &cobra.Command{
		Use:   "signals",
		Short: "Enviar señales de fin de llamada",
	}

	var signalsConsumeCmd = &cobra.Command{
		Use:   "consume",
		Short: "Consumir archivos de señal por índice",
		RunE:  runSignalsConsume,
	}
	signalsConsumeCmd.Flags().IntSlice("index", nil, "Índice del archivo (repetible)")

	var signalsEndCmd = &cobra.Command{
		Use:   "end",
		Short: "Enviar un CallEnd estructurado",
		RunE:  runSignalsEnd,
	}
	signalsEndCmd.Flags().String("call-id", "", "CALL_ID (requerido)")
	signalsEndCmd.Flags().String("status", "SUCCESS", "SUCCESS o FAILED")
	signalsEndCmd.Flags().String("uniqueid", "", "Uniqueid reportado por Asterisk")

	signalsCmd.AddCommand(signalsConsumeCmd, signalsEndCmd)

	// === ESTADO ===
	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Ocupación de troncales, cola y progreso",
		RunE:  runStatus,
	}

	rootCmd.AddCommand(campaignCmd, signalsCmd, statusCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// --- HANDLERS ---

func runCampaignStart(cmd *cobra.Command, args []string) error {
	name := getString(cmd, "name")
	audio := getString(cmd, "audio")
	numbers, _ := cmd.Flags().GetStringSlice("numbers")

	if file := getString(cmd, "file"); file != "" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		fromFile, err := readNumbers(f)
		if err != nil {
			return err
		}
		numbers = append(numbers, fromFile...)
	}

	if name == "" || audio == "" || len(numbers) == 0 {
		return fmt.Errorf("--name, --audio y --numbers o --file son requeridos")
	}

	body := map[string]interface{}{
		"campaign":  name,
		"numbers":   numbers,
		"audio_url": audio,
	}
	return sendPost(fmt.Sprintf("%s/api/v1/campaigns", apiHost), body)
}

func runCampaignSummary(cmd *cobra.Command, args []string) error {
	var summary struct {
		Campaign struct {
			ID            int64      `json:"id"`
			Name          string     `json:"name"`
			SendStartTime *time.Time `json:"send_start_time"`
			SendEndTime   *time.Time `json:"send_end_time"`
		} `json:"campaign"`
		ByStatus map[string]int `json:"by_status"`
		Total    int            `json:"total"`
	}
	if err := getJSON(fmt.Sprintf("%s/api/v1/campaigns/summary?id=%s", apiHost, args[0]), &summary); err != nil {
		return err
	}

	fmt.Printf("Campaña #%d %s\n", summary.Campaign.ID, summary.Campaign.Name)
	if summary.Campaign.SendEndTime != nil {
		fmt.Printf("Finalizada: %s\n", summary.Campaign.SendEndTime.Format(time.RFC3339))
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ESTADO\tLLAMADAS")
	fmt.Fprintln(w, "------\t--------")
	for _, st := range []string{"queued", "success", "failed"} {
		fmt.Fprintf(w, "%s\t%d\n", st, summary.ByStatus[st])
	}
	fmt.Fprintf(w, "total\t%d\n", summary.Total)
	return w.Flush()
}

func runCampaignCalls(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	var calls []struct {
		Number   string `json:"number"`
		Status   int    `json:"status"`
		CallID   string `json:"call_id"`
		UniqueID string `json:"uniqueid"`
	}
	url := fmt.Sprintf("%s/api/v1/calls?campaign_id=%s&limit=%d", apiHost, args[0], limit)
	if err := getJSON(url, &calls); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NUMERO\tESTADO\tCALL_ID\tUNIQUEID")
	fmt.Fprintln(w, "------\t------\t-------\t--------")
	for _, c := range calls {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", c.Number, c.Status, c.CallID, c.UniqueID)
	}
	return w.Flush()
}

func runSignalsConsume(cmd *cobra.Command, args []string) error {
	indices, _ := cmd.Flags().GetIntSlice("index")
	if len(indices) == 0 {
		return fmt.Errorf("--index es requerido")
	}
	return sendPost(fmt.Sprintf("%s/api/v1/signals", apiHost), map[string]interface{}{"indexCall": indices})
}

func runSignalsEnd(cmd *cobra.Command, args []string) error {
	callID := getString(cmd, "call-id")
	if callID == "" {
		return fmt.Errorf("--call-id es requerido")
	}
	event := map[string]string{
		"call_id":   callID,
		"status":    strings.ToUpper(getString(cmd, "status")),
		"userevent": "CallEnd",
		"exten":     "h",
	}
	if u := getString(cmd, "uniqueid"); u != "" {
		event["uniqueid"] = u
	}
	return sendPost(fmt.Sprintf("%s/api/v1/signals", apiHost), map[string]interface{}{"events": []map[string]string{event}})
}

func runStatus(cmd *cobra.Command, args []string) error {
	var status struct {
		Pool struct {
			Trunks []struct {
				ID       string `json:"id"`
				Free     int    `json:"free"`
				Channels []struct {
					Channel int    `json:"channel"`
					CallID  string `json:"call_id"`
					Number  string `json:"number"`
				} `json:"channels"`
			} `json:"trunks"`
			Capacity int `json:"capacity"`
			InFlight int `json:"in_flight"`
			Queued   int `json:"queued"`
		} `json:"pool"`
		Campaigns []struct {
			CampaignID int64 `json:"campaign_id"`
			Completed  int   `json:"completed"`
			Total      int   `json:"total"`
		} `json:"campaigns"`
		Ingestor struct {
			Processed int64 `json:"processed"`
			Backlog   int   `json:"backlog"`
		} `json:"ingestor"`
	}
	if err := getJSON(fmt.Sprintf("%s/api/v1/status", apiHost), &status); err != nil {
		return err
	}

	fmt.Printf("Capacidad %d, en curso %d, en cola %d\n\n", status.Pool.Capacity, status.Pool.InFlight, status.Pool.Queued)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TRONCAL\tCANAL\tCALL_ID\tNUMERO")
	fmt.Fprintln(w, "-------\t-----\t-------\t------")
	for _, t := range status.Pool.Trunks {
		for _, c := range t.Channels {
			callID := c.CallID
			if callID == "" {
				callID = "(libre)"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", t.ID, c.Channel, callID, c.Number)
		}
	}
	w.Flush()

	if len(status.Campaigns) > 0 {
		fmt.Println()
		for _, c := range status.Campaigns {
			fmt.Printf("Campaña #%d: %d/%d\n", c.CampaignID, c.Completed, c.Total)
		}
	}
	fmt.Printf("\nEventos procesados: %d, pendientes: %d\n", status.Ingestor.Processed, status.Ingestor.Backlog)
	return nil
}

// Helpers
func getString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

func getJSON(url string, v interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("error conectando a API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("error API (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func sendPost(url string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	resp, err := client.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("error de conexión: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("error (%s): %s", resp.Status, strings.TrimSpace(string(body)))
	}
	fmt.Println("Éxito!")
	fmt.Println(string(body))
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"autodialer/internal/ami"
	"autodialer/internal/api"
	"autodialer/internal/asterisk"
	"autodialer/internal/callevent"
	"autodialer/internal/campaign"
	"autodialer/internal/config"
	"autodialer/internal/database"
	"autodialer/internal/dialer"
	"autodialer/internal/notify"
	"autodialer/internal/provisioning"
	"autodialer/internal/websocket"
)

const defaultConfigPath = "/etc/autodialer/autodialer.yaml"

var (
	version    = "dev"
	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "autodialer",
		Short:        "Marcador automático de campañas sobre Asterisk",
		Long:         `Despacha llamadas salientes de campañas sobre un conjunto fijo de troncales y concilia las señales de fin de llamada.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Archivo de configuración (por defecto $AUTODIALER_CONFIG o "+defaultConfigPath+")")

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Inicia el servicio completo",
		RunE:  runStart,
	}

	trunksCmd := &cobra.Command{
		Use:   "trunks",
		Short: "Muestra las troncales configuradas y la capacidad total",
		RunE:  runTrunks,
	}

	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Imprime el archivo .call que se generaría para una llamada",
		RunE:  runRender,
	}
	renderCmd.Flags().String("number", "", "Número destino (requerido)")
	renderCmd.Flags().String("trunk", "", "Troncal (por defecto la primera configurada)")
	renderCmd.Flags().Int64("campaign", 0, "ID de campaña")
	renderCmd.Flags().String("call-id", "", "CALL_ID (por defecto uno nuevo)")

	provisionCmd := &cobra.Command{
		Use:   "provision",
		Short: "Genera el dialplan y el usuario AMI para Asterisk",
		RunE:  runProvision,
	}
	provisionCmd.Flags().String("dir", "/etc/asterisk", "Directorio de configuración de Asterisk")
	provisionCmd.Flags().Bool("print", false, "Solo imprimir el dialplan, sin escribir archivos")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Muestra la versión",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("autodialer %s\n", version)
		},
	}

	rootCmd.AddCommand(startCmd, trunksCmd, renderCmd, provisionCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resuelve la ruta y carga la configuración. Si no se indicó
// ninguna ruta y el archivo por defecto no existe se usan los valores por defecto.
func loadConfig() (*config.Config, error) {
	path := configPath
	explicit := path != ""
	if !explicit {
		path = os.Getenv("AUTODIALER_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		path = defaultConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil && !explicit && errors.Is(err, os.ErrNotExist) {
		log.Printf("[Main] %s no existe, usando configuración por defecto", path)
		return config.Parse(nil)
	}
	return cfg, err
}

func runStart(cmd *cobra.Command, args []string) error {
	log.Printf("[Main] Autodialer %s", version)
	log.Println("[Main] Iniciando servicios...")

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("error cargando configuración: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Conectar a base de datos
	dbConn, err := database.NewConnection(cfg.Database)
	if err != nil {
		return fmt.Errorf("error conectando a base de datos: %w", err)
	}
	defer dbConn.Close()
	if err := database.Migrate(ctx, dbConn); err != nil {
		return fmt.Errorf("error migrando esquema: %w", err)
	}
	repo := database.NewRepository(dbConn)
	log.Printf("[Main] ✓ Base de datos conectada (%s)", cfg.Database.Driver)

	// Notificaciones
	hub := websocket.NewHub()
	publishers := []notify.Publisher{hub}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		publishers = append(publishers, kp)
		log.Printf("[Main] ✓ Kafka %v topic=%s", cfg.Kafka.Brokers, cfg.Kafka.Topic)
	}
	publisher := notify.NewMulti(publishers...)

	var amiClient *ami.Client
	if cfg.AMI.Enabled {
		amiClient = ami.NewClient(cfg.AMI)
	}

	var originator dialer.Originator
	switch cfg.Asterisk.Originate {
	case "ami":
		originator = ami.NewOriginator(amiClient, cfg.Asterisk)
		log.Println("[Main] ✓ Originación por AMI")
	default:
		spooler, err := asterisk.NewSpooler(cfg.Asterisk)
		if err != nil {
			return err
		}
		originator = spooler
		log.Println("[Main] ✓ Originación por archivos .call")
	}

	// Núcleo del marcador
	pool := dialer.NewTrunkPool(cfg.Trunks)
	tracker := dialer.NewCompletionTracker()

	var ingestor *callevent.Ingestor
	sched := dialer.NewScheduler(pool, originator, repo, dialer.Options{
		RetryInterval:    cfg.Dialer.RetryInterval,
		StaleCallTimeout: cfg.Dialer.StaleCallTimeout,
		OnStale: func(req dialer.CallRequest) bool {
			return ingestor.TrySubmit(callevent.Terminal(req.CallID, req.CampaignID, callevent.StatusFailed))
		},
		Publisher: publisher,
		Debug:     cfg.Log.Debug(),
	})
	ingestor = callevent.NewIngestor(sched, repo, tracker, callevent.Options{
		Buffer:    cfg.Dialer.EventBuffer,
		Publisher: publisher,
		Debug:     cfg.Log.Debug(),
	})

	server := api.NewServer(cfg.API, api.Deps{
		Campaigns: campaign.NewService(repo, sched, tracker),
		Signals:   asterisk.NewSignalDir(cfg.Asterisk.SignalDir, ingestor),
		Events:    ingestor,
		Pool:      sched,
		Tracker:   tracker,
		Reports:   repo,
		WebSocket: hub,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return ingestor.Run(gctx) })
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return server.Run(gctx) })

	if amiClient != nil {
		forwarder := ami.NewForwarder(amiClient, ingestor, cfg.Log.Debug())
		g.Go(func() error { return amiClient.Run(gctx) })
		g.Go(func() error { return forwarder.Run(gctx) })
		log.Printf("[Main] ✓ Cliente AMI %s", cfg.AMI.Address())
	}

	if dir := cfg.Asterisk.WritebackDir; dir != "" {
		watcher := asterisk.NewWatcher(dir, ingestor, 0)
		g.Go(func() error {
			if err := watcher.Run(gctx); err != nil && gctx.Err() == nil {
				log.Printf("[Main] Watcher no disponible: %v", err)
			}
			return nil
		})
	}

	log.Println("[Main] ========================================")
	log.Printf("[Main] Troncales: %d, capacidad: %d canales", len(cfg.Trunks), cfg.Capacity())
	log.Printf("[Main] API REST escuchando en %s", cfg.API.Address())
	log.Println("[Main] Servicio iniciado correctamente")
	log.Println("[Main] Presiona Ctrl+C para detener")
	log.Println("[Main] ========================================")

	err = g.Wait()
	log.Println("[Main] Deteniendo servicio...")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runTrunks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ORDEN\tTRONCAL\tCANALES")
	fmt.Fprintln(w, "-----\t-------\t-------")
	for i, t := range cfg.Trunks {
		fmt.Fprintf(w, "%d\t%s\t%d\n", i+1, t.ID, t.Channels)
	}
	w.Flush()
	fmt.Printf("\nCapacidad total: %d canales\n", cfg.Capacity())
	return nil
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	number, _ := cmd.Flags().GetString("number")
	trunk, _ := cmd.Flags().GetString("trunk")
	campaignID, _ := cmd.Flags().GetInt64("campaign")
	callID, _ := cmd.Flags().GetString("call-id")

	if number == "" {
		return errors.New("--number es requerido")
	}
	if trunk == "" {
		trunk = cfg.Trunks[0].ID
	}
	if callID == "" {
		callID = uuid.NewString()
	}

	tmpl := asterisk.TemplateFromConfig(cfg.Asterisk)
	req := dialer.CallRequest{CallID: callID, Number: number, CampaignID: campaignID}
	fmt.Fprintf(os.Stderr, "# %s\n", asterisk.FileName(number, trunk))
	fmt.Print(tmpl.Render(req, dialer.Slot{Trunk: trunk, Channel: 1}))
	return nil
}

func runProvision(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if only, _ := cmd.Flags().GetBool("print"); only {
		fmt.Print(provisioning.Dialplan(cfg.Asterisk))
		return nil
	}

	dir, _ := cmd.Flags().GetString("dir")
	changed, err := provisioning.Install(dir, cfg)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		fmt.Println("Sin cambios.")
		return nil
	}
	fmt.Println("Archivos actualizados (recargue Asterisk con 'dialplan reload' y 'manager reload'):")
	for _, c := range changed {
		fmt.Printf("  %s\n", c)
	}
	return nil
}

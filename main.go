package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/webcamd/cmd"
	"github.com/smazurov/webcamd/internal/api"
	"github.com/smazurov/webcamd/internal/camera"
	"github.com/smazurov/webcamd/internal/config"
	"github.com/smazurov/webcamd/internal/events"
	"github.com/smazurov/webcamd/internal/logging"
	"github.com/smazurov/webcamd/internal/metrics"
	"github.com/smazurov/webcamd/internal/service"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"webcamd.toml"`

	// Gadget settings
	Device  string `help:"UVC gadget video node (empty = discover)" toml:"uvc.device" env:"DEVICE"`
	Formats string `help:"Advertised formats, \"name:WxH@fps[,fps];...\"" default:"yuyv:640x480@30,15;mjpeg:1280x720@30,15;mjpeg:1920x1080@30" toml:"uvc.formats" env:"FORMATS"`
	Buffers int    `help:"Gadget buffer count" default:"4" toml:"uvc.buffers" env:"BUFFERS"`

	// Camera settings
	JpegQuality int `help:"MJPEG encode quality (1-100)" default:"80" toml:"camera.jpeg_quality" env:"JPEG_QUALITY"`
	Rotation    int `help:"Camera orientation correction in degrees (0 or 180)" default:"0" toml:"camera.rotation" env:"ROTATION"`

	// Vendor overlays
	IgnoredNodesFile string `help:"Vendor ignored-nodes overlay (JSON)" default:"/vendor/etc/ignored_v4l2_nodes.json" toml:"vendor.ignored_nodes_file" env:"IGNORED_NODES_FILE"`
	CameraPrefsFile  string `help:"Vendor physical camera overlay (JSON)" default:"/vendor/etc/physical_camera_mapping.json" toml:"vendor.camera_prefs_file" env:"CAMERA_PREFS_FILE"`

	// API settings
	ApiAddr string `help:"Status API listen address" default:":8090" toml:"api.addr" env:"API_ADDR"`

	// Logging settings
	LoggingLevel   string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat  string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingUvc     string `help:"UVC engine logging level" default:"info" toml:"logging.uvc" env:"LOGGING_UVC"`
	LoggingCamera  string `help:"Camera bridge logging level" default:"info" toml:"logging.camera" env:"LOGGING_CAMERA"`
	LoggingEncoder string `help:"Encoder logging level" default:"info" toml:"logging.encoder" env:"LOGGING_ENCODER"`
	LoggingService string `help:"Service logging level" default:"info" toml:"logging.service" env:"LOGGING_SERVICE"`
	LoggingApi     string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"uvc":     opts.LoggingUvc,
				"camera":  opts.LoggingCamera,
				"encoder": opts.LoggingEncoder,
				"service": opts.LoggingService,
				"api":     opts.LoggingApi,
			},
		})
		logger := logging.GetLogger("main")

		formats, err := config.ParseFormats(opts.Formats)
		if err != nil {
			logger.Error("Invalid format option", "error", err)
			os.Exit(1)
		}
		if opts.Rotation != 0 && opts.Rotation != 180 {
			logger.Error("Rotation must be 0 or 180", "rotation", opts.Rotation)
			os.Exit(1)
		}

		ignored, err := config.LoadIgnoredNodes(opts.IgnoredNodesFile)
		if err != nil {
			logger.Warn("Ignoring vendor node overlay", "error", err)
		}
		prefs, err := config.LoadVendorCameraPrefs(opts.CameraPrefsFile)
		if err != nil {
			logger.Warn("Ignoring vendor camera overlay", "error", err)
		} else {
			for _, cam := range prefs.PhysicalCameras("0") {
				logger.Info("Vendor physical camera", "id", cam.ID, "label", cam.Label)
			}
		}

		bus := events.New()
		met := metrics.New()

		svc, err := service.New(service.Options{
			Device:           opts.Device,
			IgnoredNodes:     ignored,
			IgnoredNodesFile: opts.IgnoredNodesFile,
			Formats:          formats,
			Source:           camera.TestPattern{},
			BufferCount:      opts.Buffers,
			JPEGQuality:      opts.JpegQuality,
			Rotation:         opts.Rotation,
		}, bus, met)
		if err != nil {
			logger.Error("Building service failed", "error", err)
			os.Exit(1)
		}

		server := api.NewServer(&api.Options{
			Status:            svc,
			PrometheusHandler: met.Handler(),
		})

		hooks.OnStart(func() {
			if startErr := svc.Start(); startErr != nil {
				logger.Error("Failed to start service", "error", startErr)
				os.Exit(1)
			}

			logger.Info("Starting HTTP server", "addr", opts.ApiAddr)
			if startErr := server.Start(opts.ApiAddr); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			svc.Stop()
		})
	})

	cli.Root().AddCommand(cmd.CreateProbeCmd())

	cli.Run()
}

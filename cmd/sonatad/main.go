// Command sonatad is the observing control-plane process: it loads configuration and the expected-components manifest,
// opens the persistence store, binds one component-manager listener per
// class, and runs the Scheduler until its queue drains or it is signalled
// to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/atasvc/sonata/internal/archive"
	"github.com/atasvc/sonata/internal/astro"
	"github.com/atasvc/sonata/internal/config"
	"github.com/atasvc/sonata/internal/followup"
	"github.com/atasvc/sonata/internal/notify"
	"github.com/atasvc/sonata/internal/observe"
	"github.com/atasvc/sonata/internal/obsstrategy"
	"github.com/atasvc/sonata/internal/persistence"
	"github.com/atasvc/sonata/internal/proxy"
	"github.com/atasvc/sonata/internal/registry"
	"github.com/atasvc/sonata/internal/scheduler"
	"github.com/atasvc/sonata/internal/targetselector"
	"github.com/atasvc/sonata/internal/telemetry/logging"
	"github.com/atasvc/sonata/internal/topology"
	"github.com/atasvc/sonata/internal/wire"
	"github.com/atasvc/sonata/pkg/obsmodel"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", "sonatad.yaml", "path to the operational config file")
		topoPath   = flag.String("topology", "", "path to the expected-components manifest (overrides config)")
		paramsPath = flag.String("params", "", "path to a JSON file with the initial strategy's user parameters")
	)
	flag.Parse()

	log := logging.New(slog.Default())

	cfgReg, err := config.NewRegistry(*configPath)
	if err != nil {
		log.Error("sonatad: load config failed", "err", err)
		return 1
	}
	cfg := cfgReg.Current()

	layout := archive.NewLayout(cfg.Archive.Root)
	if err := layout.Ensure(); err != nil {
		log.Error("sonatad: archive layout unusable", "err", err)
		return 1
	}
	debugSink := logging.RotatingDebugSink(filepath.Join(layout.TempLogs(), "sonatad-debug.log"), func(msg string) {
		log.Warn("sonatad: " + msg)
	})
	log = logging.NewWithRotatingDebugSink(debugSink, slog.LevelDebug)

	activityLog, err := archive.OpenActivityLog(layout)
	if err != nil {
		log.Error("sonatad: open activity log failed", "err", err)
		return 1
	}
	defer activityLog.Close()

	manifestPath := cfg.Topology.ManifestPath
	if *topoPath != "" {
		manifestPath = *topoPath
	}
	topoReg, err := topology.NewRegistry(manifestPath)
	if err != nil {
		log.Error("sonatad: load topology manifest failed", "err", err)
		return 1
	}
	tree := topoReg.Current()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if _, err := cfgReg.Watch(ctx); err != nil {
		log.Warn("sonatad: config hot-reload disabled", "err", err)
	}
	if _, err := topoReg.Watch(ctx); err != nil {
		log.Warn("sonatad: topology hot-reload disabled", "err", err)
	}

	store, err := persistence.Open(ctx, cfg.Persistence.DSN)
	if err != nil {
		log.Error("sonatad: open persistence store failed", "err", err)
		return 1
	}
	defer store.Close()

	met := buildMetricsProvider(cfg.Telemetry)

	managers := bindComponentManagers(cfg, log)
	for class, m := range managers {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", portFor(cfg.Ports, class)))
		if err != nil {
			log.Error("sonatad: listen failed", "class", class, "err", err)
			return 1
		}
		go func(m *proxy.Manager, ln net.Listener) {
			if err := m.Serve(ln); err != nil {
				log.Error("sonatad: component manager accept loop exited", "err", err)
			}
		}(m, ln)
	}

	site := astro.Site{
		LongitudeRads: cfg.TargetSel.SiteLongitudeRads,
		LatitudeRads:  cfg.TargetSel.SiteLatitudeRads,
		HorizonRads:   cfg.TargetSel.HorizonRads,
	}
	library := astro.New(site)
	selector := targetselector.New(store, library, targetselector.Constraints{
		MinBeamSepFactor:               cfg.TargetSel.MinBeamSepFactor,
		MinUsableRemainingBandwidthMHz: cfg.TargetSel.MinUsableBandwidthMHz,
		MinDXPercent:                   cfg.TargetSel.MinDXPercent,
		TotalBandwidthMHz:              cfg.TargetSel.TotalBandwidthMHz,
		SmallestDetectorBandwidthMHz:   cfg.TargetSel.SmallestDetectorBWMHz,
		Band:                           obsmodel.ObsRange{LowMHz: cfg.TargetSel.BandLowMHz, HighMHz: cfg.TargetSel.BandHighMHz},
		SunAvoidanceRads:               cfg.TargetSel.SunAvoidanceRads,
		MoonAvoidanceRads:              cfg.TargetSel.MoonAvoidanceRads,
		GeosatAvoidanceRads:            cfg.TargetSel.GeosatAvoidanceRads,
		ZenithAvoidanceRads:            cfg.TargetSel.ZenithAvoidanceRads,
		DecLowerLimitRads:              cfg.TargetSel.DecLowerLimitRads,
		DecUpperLimitRads:              cfg.TargetSel.DecUpperLimitRads,
		MaxDistanceLightYears:          cfg.TargetSel.MaxDistanceLightYears,
		WaitTargetCompleteSkips:        cfg.TargetSel.WaitTargetCompleteSkips,
	})

	followUp, err := followup.New(followup.TypeMap(cfg.FollowUp.TypeMap))
	if err != nil {
		log.Error("sonatad: follow-up type map invalid", "err", err)
		return 1
	}

	reg := registry.New(tree, registry.Managers{
		Tscope:      managers[wire.ClassTscope],
		IFC:         managers[wire.ClassIFC],
		TestSig:     managers[wire.ClassTestSig],
		DX:          managers[wire.ClassDX],
		Archiver:    managers[wire.ClassArchiver],
		Channelizer: managers[wire.ClassChannelizer],
	})

	var mailer *notify.Mailer
	if cfg.Strategy.MailEnabled {
		mailer = notify.NewMailer(notify.MailerConfig{
			SMTPHost: cfg.Mail.SMTPHost,
			SMTPPort: cfg.Mail.SMTPPort,
			From:     cfg.Mail.From,
			To:       cfg.Mail.To,
		})
	}

	statusPath := cfg.Scheduler.StatusSnapshotPath
	if statusPath != "" && !filepath.IsAbs(statusPath) {
		statusPath = filepath.Join(cfg.Archive.Root, statusPath)
	}
	sched := scheduler.New(scheduler.Config{
		StopOnStrategyFailure: cfg.Scheduler.StopOnStrategyFailure,
		StatusSnapshotPeriod:  cfg.Scheduler.StatusSnapshotPeriod,
		StatusSnapshotPath:    statusPath,
	}, clockReal(), log, met)

	sched.RegisterActivityType("off", true)
	sched.RegisterActivityType("pointantswait", false)

	sched.RegisterActivityType("target", true)
	sched.RegisterActivityType("targeton", true)
	sched.RegisterActivityType("targetoff", true)
	sched.RegisterActivityType("targetonnofollowup", true)
	sched.RegisterActivityType("calibrate", true)
	sched.RegisterActivityType("gridwest", true)
	sched.RegisterActivityType("gridsouth", true)
	sched.RegisterActivityType("gridon", true)
	sched.RegisterActivityType("gridnorth", true)
	sched.RegisterActivityType("grideast", true)

	sched.RegisterActivityType("birdiescan", false)
	sched.RegisterActivityType("rfbirdiescan", false)
	sched.RegisterActivityType("datacollect", false)
	sched.RegisterActivityType("dxtest", false)
	sched.RegisterActivityType("iftest", false)
	sched.RegisterActivityType("iftestfollowup", false)
	sched.RegisterActivityType("iftestfollowupon", false)
	sched.RegisterActivityType("iftestfollowupoff", false)
	sched.RegisterActivityType("rftest", false)
	sched.RegisterActivityType("rftestfollowup", false)
	sched.RegisterActivityType("rftestforcedarchive", false)
	sched.RegisterActivityType("rfiscan", false)
	sched.RegisterActivityType("autoselectants", false)
	sched.RegisterActivityType("tscopesetup", false)
	sched.RegisterActivityType("prepants", false)
	sched.RegisterActivityType("freeants", false)
	sched.RegisterActivityType("beamformerreset", false)
	sched.RegisterActivityType("beamformerinit", false)
	sched.RegisterActivityType("beamformerautoatten", false)

	sched.RegisterStrategyType("observe", func(rawParams map[string]any, onComplete func(bool)) scheduler.Strategy {
		if err := layout.WriteSystemConfigSnapshot(cfg); err != nil {
			log.Warn("sonatad: system-config snapshot write failed", "err", err)
		}
		_ = activityLog.Append(clockReal().Now(), "strategy observe starting")
		params := paramsFromMap(rawParams)
		deps := obsstrategy.Deps{
			Topology: tree,
			Selector: selector,
			FollowUp: followUp,
			Store:    store,
			Registry: reg,
			Clock:    clockReal(),
			Log:      log,
			ObsCfg: observe.Config{
				Watchdog:               cfg.Watchdog,
				ArchiveRoot:            cfg.Archive.Root,
				DiskErrorPercentFull:   cfg.Archive.DiskErrorPercentFull,
				DiskWarningPercentFull: cfg.Archive.DiskWarningPercentFull,
			},
			Name: "observe",
		}
		stratCfg := activitybaseConfig(cfg)
		s := obsstrategy.New(stratCfg, params, deps, func(failed bool) {
			_ = activityLog.Append(clockReal().Now(), fmt.Sprintf("strategy observe complete failed=%v", failed))
			if failed && mailer != nil {
				if history, err := store.LastNFailedActivities(context.Background(), deps.Name, cfg.Strategy.MailHistoryDepth); err == nil {
					_ = mailer.NotifyStrategyFailure(deps.Name, history)
				}
			}
			onComplete(failed)
		})
		return s
	})

	if cfg.Telemetry.StatusHTTPAddr != "" {
		go serveStatusHTTP(cfg.Telemetry.StatusHTTPAddr, sched, log)
	}

	initialParams, err := loadInitialParams(*paramsPath)
	if err != nil {
		log.Error("sonatad: load initial strategy parameters failed", "err", err)
		return 1
	}
	if err := sched.Enqueue("observe", initialParams); err != nil {
		log.Error("sonatad: enqueue initial strategy failed", "err", err)
		return 1
	}

	log.Info("sonatad: starting scheduler")
	sched.Run(ctx)
	log.Info("sonatad: scheduler drained, exiting")
	return 0
}

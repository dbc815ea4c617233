// stixtm decodes raw STIX telemetry against the versioned instrument
// database and emits one JSON record per packet.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/i4Ds/STIXCore-sub001/internal/config"
	"github.com/i4Ds/STIXCore-sub001/internal/engineering"
	"github.com/i4Ds/STIXCore-sub001/internal/idb"
	"github.com/i4Ds/STIXCore-sub001/internal/monitoring"
	"github.com/i4Ds/STIXCore-sub001/internal/processing"
	"github.com/i4Ds/STIXCore-sub001/internal/tmtc"
	"github.com/i4Ds/STIXCore-sub001/internal/version"
)

var rootCmd = &cobra.Command{
	Use:          "stixtm",
	Short:        "STIX telemetry decoding pipeline",
	SilenceUsage: true,
}

// parseCmd represents the parse command
var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Decode raw telemetry into one JSON record per packet",
	Long: `Parse reads a stream of CCSDS source packets, resolves the instrument
database version in effect at each packet's onboard time, decodes the
packet against its structure definition and writes one JSON record per
packet. With --calibrate, engineering values are added for every
parameter the database calibrates.`,
	RunE: runParse,
}

var (
	flagConfig      string
	flagFile        string
	flagOut         string
	flagIDBRoot     string
	flagIDBVersion  string
	flagFallback    string
	flagHistory     string
	flagStopOnError bool
	flagCalibrate   bool
)

func init() {
	rootCmd.Version = version.String()
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringVarP(&flagFile, "file", "f", "", "raw telemetry file (default: stdin)")
	parseCmd.Flags().StringVarP(&flagOut, "out", "o", "", "write records to this file (default: stdout)")
	parseCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "pipeline configuration YAML")
	parseCmd.Flags().StringVar(&flagIDBRoot, "idb-root", "", "IDB root directory holding "+idb.ManifestName)
	parseCmd.Flags().StringVar(&flagIDBVersion, "idb-version", "", "decode every packet with this IDB version")
	parseCmd.Flags().StringVar(&flagFallback, "fallback-version", "", "IDB version for onboard times no release covers")
	parseCmd.Flags().StringVar(&flagHistory, "history", "", "history database recording runs and enabling duplicate detection")
	parseCmd.Flags().BoolVar(&flagStopOnError, "stop-on-error", false, "abort at the first packet that fails to decode")
	parseCmd.Flags().BoolVar(&flagCalibrate, "calibrate", false, "apply engineering calibration to decoded values")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig merges the optional config file with command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Pipeline, error) {
	cfg := config.Default()
	if flagConfig != "" {
		loaded, err := config.Load(flagConfig)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if cmd.Flags().Changed("idb-root") {
		cfg.IDB.Root = flagIDBRoot
	}
	if cmd.Flags().Changed("idb-version") {
		cfg.IDB.ForceVersion = flagIDBVersion
	}
	if cmd.Flags().Changed("fallback-version") {
		cfg.IDB.FallbackVersion = flagFallback
	}
	if cmd.Flags().Changed("history") {
		cfg.Processing.HistoryDB = flagHistory
	}
	if cmd.Flags().Changed("stop-on-error") {
		cfg.Processing.StopOnError = flagStopOnError
	}
	return &cfg, nil
}

func runParse(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Logs.Directory != "" {
		closer, err := monitoring.SetupFileLogging("stixtm", cfg.Logs)
		if err != nil {
			return err
		}
		defer closer.Close()
	}
	if cfg.IDB.Root == "" {
		return fmt.Errorf("an IDB root is required (--idb-root or the config file)")
	}

	mgr, err := idb.NewManager(cfg.IDB.Root)
	if err != nil {
		return err
	}
	defer mgr.Close()
	if cfg.IDB.ForceVersion != "" {
		if !mgr.HasVersion(cfg.IDB.ForceVersion) {
			return fmt.Errorf("forced IDB version %s is not in the release manifest", cfg.IDB.ForceVersion)
		}
		mgr.ForceVersion(cfg.IDB.ForceVersion)
	}

	var in io.Reader = os.Stdin
	if flagFile != "" {
		f, err := os.Open(flagFile)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	out := os.Stdout
	if flagOut != "" {
		f, err := os.Create(flagOut)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	var (
		store *processing.Store
		run   processing.Run
	)
	if cfg.Processing.HistoryDB != "" {
		store, err = processing.Open(cfg.Processing.HistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()
		run, err = store.StartRun()
		if err != nil {
			return err
		}
	}

	dec := decoder{
		mgr:       mgr,
		fallback:  cfg.IDB.FallbackVersion,
		calibrate: flagCalibrate,
	}
	enc := json.NewEncoder(out)

	var total, decoded, unknown, duplicates, failed int
	runErr := tmtc.ReadPackets(bufio.NewReader(in), func(p *tmtc.Packet) error {
		total++
		rec, err := dec.decode(p)
		if err != nil {
			failed++
			if cfg.Processing.StopOnError {
				return fmt.Errorf("packet %d at %s: %w", total, p.DataHeader.Timestamp, err)
			}
			monitoring.Logf("WARN: packet %d at %s: %v", total, p.DataHeader.Timestamp, err)
			return nil
		}
		if rec == nil {
			unknown++
			return nil
		}
		if store != nil {
			fresh, err := store.SeenPacket(run.ID, p.Digest(), p.DataHeader.Timestamp,
				rec.ServiceType, rec.ServiceSubtype, rec.PI1)
			if err != nil {
				return err
			}
			if !fresh {
				duplicates++
				return nil
			}
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
		decoded++
		return nil
	})

	if runErr == nil && failed > 0 {
		runErr = fmt.Errorf("%d of %d packets failed to decode", failed, total)
	}
	monitoring.Logf("stixtm: %d packets read: %d decoded, %d unknown to the catalog, %d duplicates, %d failed",
		total, decoded, unknown, duplicates, failed)

	if store != nil {
		if flagOut != "" && decoded > 0 {
			if err := store.RecordPublished(flagOut, run.ID); err != nil {
				monitoring.Logf("WARN: record published %s: %v", flagOut, err)
			}
		}
		if err := store.CompleteRun(run.ID, runErr); err != nil {
			monitoring.Logf("WARN: complete run %s: %v", run.ID, err)
		}
	}
	return runErr
}

// packetRecord is the JSON document emitted for one decoded packet.
type packetRecord struct {
	APID           uint16            `json:"apid"`
	SequenceCount  uint16            `json:"sequence_count"`
	ServiceType    int               `json:"service_type"`
	ServiceSubtype int               `json:"service_subtype"`
	PI1            int               `json:"pi1"`
	SPID           int64             `json:"spid"`
	Description    string            `json:"description,omitempty"`
	SCET           string            `json:"scet"`
	UTC            string            `json:"utc"`
	IDBVersion     string            `json:"idb_version"`
	Parameters     map[string]any    `json:"parameters"`
	Engineering    map[string]any    `json:"engineering,omitempty"`
	Units          map[string]string `json:"units,omitempty"`
}

// decoder holds the per-run decode context.
type decoder struct {
	mgr       *idb.Manager
	fallback  string
	calibrate bool
}

// decode runs one packet through identify, parse, merge and flatten. A nil
// record with nil error means the catalog does not know the packet type.
func (d *decoder) decode(p *tmtc.Packet) (*packetRecord, error) {
	ts := p.DataHeader.Timestamp

	var (
		ver string
		err error
	)
	if d.fallback != "" {
		ver = d.mgr.FindVersionOrDefault(ts, d.fallback)
	} else {
		ver, err = d.mgr.FindVersion(ts)
		if err != nil {
			return nil, err
		}
	}
	cat, err := d.mgr.IDB(ver)
	if err != nil {
		return nil, err
	}

	info, ok, err := tmtc.Identify(p, cat)
	if err != nil {
		return nil, err
	}
	if !ok {
		monitoring.Logf("WARN: no catalog entry for packet (service %d, subtype %d) at %s",
			p.DataHeader.ServiceType, p.DataHeader.ServiceSubtype, ts)
		return nil, nil
	}

	tree, ok, err := cat.Structure(info.ServiceType, info.ServiceSubtype, info.PI1)
	if err != nil {
		return nil, err
	}
	if !ok {
		monitoring.Logf("WARN: no structure for %s (SPID %d) at %s", info.Description, info.SPID, ts)
		return nil, nil
	}

	params, err := tmtc.Parse(p.Data, tree)
	if err != nil {
		return nil, err
	}
	merged, err := tmtc.Merge(params)
	if err != nil {
		return nil, err
	}
	flat := tmtc.FlattenAll(merged)

	rec := &packetRecord{
		APID:           p.SourceHeader.APID,
		SequenceCount:  p.SourceHeader.SequenceCount,
		ServiceType:    info.ServiceType,
		ServiceSubtype: info.ServiceSubtype,
		PI1:            info.PI1,
		SPID:           info.SPID,
		Description:    info.Description,
		SCET:           ts.String(),
		UTC:            ts.UTC().Format(time.RFC3339Nano),
		IDBVersion:     cat.Version(),
		Parameters:     make(map[string]any, len(flat.Names())),
	}
	for _, name := range flat.Names() {
		v, _ := flat.Get(name)
		rec.Parameters[name] = v
	}

	if d.calibrate {
		applyCalibration(rec, tree, flat, cat)
	}
	return rec, nil
}

// applyCalibration adds engineering values for every parameter the catalog
// calibrates. Calibration trouble degrades to raw values, never to a failed
// packet.
func applyCalibration(rec *packetRecord, tree *idb.StructureNode, flat *tmtc.Record, cat *idb.IDB) {
	descs := make(map[string]*idb.ParameterInfo)
	tree.Walk(func(n *idb.StructureNode) { descs[n.Name] = n.Param })

	for _, name := range flat.Names() {
		desc := descs[name]
		if desc == nil || !desc.IsCalibrated() {
			continue
		}
		raw, _ := flat.Get(name)
		eng, err := engineering.Apply(raw, desc, cat)
		if err != nil {
			monitoring.Logf("WARN: calibrate %s: %v", name, err)
			continue
		}
		if eng.Engineering == nil {
			continue
		}
		if rec.Engineering == nil {
			rec.Engineering = make(map[string]any)
			rec.Units = make(map[string]string)
		}
		rec.Engineering[name] = eng.Engineering
		if eng.Unit != "" {
			rec.Units[name] = eng.Unit
		}
	}
}

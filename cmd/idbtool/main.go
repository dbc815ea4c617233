// idbtool inspects the versioned instrument databases under an IDB root:
// released versions, packet structure definitions and calibration data.
// It never writes to the databases.
package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/i4Ds/STIXCore-sub001/internal/idb"
	"github.com/i4Ds/STIXCore-sub001/internal/version"
)

var rootCmd = &cobra.Command{
	Use:          "idbtool",
	Short:        "Inspect STIX instrument database releases",
	SilenceUsage: true,
}

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "List released IDB versions and their onboard-time validity",
	RunE:  runVersions,
}

var structureCmd = &cobra.Command{
	Use:   "structure",
	Short: "Print the parameter layout tree of one packet type",
	RunE:  runStructure,
}

var calibrationCmd = &cobra.Command{
	Use:   "calibration",
	Short: "Print the calibration definitions of one packet type",
	RunE:  runCalibration,
}

var (
	flagRoot       string
	flagIDBVersion string
	flagService    int
	flagSubtype    int
	flagPI1        int
	flagName       string
)

func init() {
	rootCmd.Version = version.String()
	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", "", "IDB root directory holding "+idb.ManifestName)
	rootCmd.MarkPersistentFlagRequired("root")

	rootCmd.AddCommand(versionsCmd)

	for _, cmd := range []*cobra.Command{structureCmd, calibrationCmd} {
		cmd.Flags().StringVar(&flagIDBVersion, "idb-version", "", "IDB version to inspect")
		cmd.Flags().IntVarP(&flagService, "service-type", "t", 0, "service type")
		cmd.Flags().IntVarP(&flagSubtype, "service-subtype", "s", 0, "service subtype")
		cmd.Flags().IntVar(&flagPI1, "pi1", idb.NoDiscriminant, "packet discriminant (omit for packets without one)")
		cmd.MarkFlagRequired("idb-version")
		cmd.MarkFlagRequired("service-type")
		cmd.MarkFlagRequired("service-subtype")
		rootCmd.AddCommand(cmd)
	}
	calibrationCmd.Flags().StringVar(&flagName, "name", "", "restrict to one parameter name")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runVersions(cmd *cobra.Command, args []string) error {
	mgr, err := idb.NewManager(flagRoot)
	if err != nil {
		return err
	}
	defer mgr.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tVALID FROM\tVALID TO\tDATA")
	for _, iv := range mgr.Intervals() {
		data := "yes"
		if _, err := mgr.IDB(iv.Version); err != nil {
			data = "missing"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", iv.Version, iv.Start, iv.End, data)
	}
	return w.Flush()
}

// openCatalog resolves the --idb-version flag against the root.
func openCatalog() (*idb.Manager, *idb.IDB, error) {
	mgr, err := idb.NewManager(flagRoot)
	if err != nil {
		return nil, nil, err
	}
	cat, err := mgr.IDB(flagIDBVersion)
	if err != nil {
		mgr.Close()
		return nil, nil, err
	}
	return mgr, cat, nil
}

func runStructure(cmd *cobra.Command, args []string) error {
	mgr, cat, err := openCatalog()
	if err != nil {
		return err
	}
	defer mgr.Close()

	info, ok, err := cat.PacketTypeInfo(flagService, flagSubtype, flagPI1)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no packet type (%d, %d, pi1 %d) in IDB %s",
			flagService, flagSubtype, flagPI1, cat.Version())
	}
	kind := "static"
	if info.IsVariable() {
		kind = "variable"
	}
	fmt.Printf("%s (SPID %d, %s)\n", info.Description, info.SPID, kind)

	tree, ok, err := cat.Structure(flagService, flagSubtype, flagPI1)
	if err != nil {
		return err
	}
	if !ok || len(tree.Children) == 0 {
		fmt.Println("  (no parameters)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	printLevel(w, tree.Children, 1)
	return w.Flush()
}

func printLevel(w *tabwriter.Writer, nodes []*idb.StructureNode, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		p := n.Param
		calib := ""
		if p.IsCalibrated() {
			calib = p.Curtx
		}
		group := ""
		if p.GroupSize > 0 {
			group = fmt.Sprintf("group(%d)", p.GroupSize)
		}
		fmt.Fprintf(w, "%s%s\t%s%d\t%s\t%s\t%s\n",
			indent, p.Name, p.SType, p.Width, calib, group, p.Description)
		printLevel(w, n.Children, depth+1)
	}
}

func runCalibration(cmd *cobra.Command, args []string) error {
	mgr, cat, err := openCatalog()
	if err != nil {
		return err
	}
	defer mgr.Close()

	params, err := cat.CalibrationParameters(flagService, flagSubtype, flagPI1, flagName, "")
	if err != nil {
		return err
	}
	if len(params) == 0 {
		fmt.Println("no calibrated parameters match")
		return nil
	}

	for _, p := range params {
		fmt.Printf("%s (%s): %s\n", p.Name, p.Description, p.Curtx)
		switch {
		case p.Categ == "S":
			fmt.Println("  textual status calibration")
		case strings.HasPrefix(p.Curtx, "CIXP"):
			curve, ok, err := cat.CalibrationCurve(p)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("  curve definition missing")
				continue
			}
			if !curve.Valid() {
				fmt.Println("  curve definition invalid")
				continue
			}
			xs, ys := curve.Points()
			fmt.Printf("  curve with %d support points:\n", curve.Len())
			for i := range xs {
				fmt.Printf("    %g -> %g\n", xs[i], ys[i])
			}
		case strings.HasPrefix(p.Curtx, "CIX"):
			poly, ok, err := cat.CalibrationPolynomial(p.Curtx)
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("  polynomial definition missing")
				continue
			}
			if !poly.Valid() {
				fmt.Println("  polynomial definition invalid")
				continue
			}
			fmt.Printf("  polynomial coefficients A0..A4: %g %g %g %g %g\n",
				poly.Coeffs[0], poly.Coeffs[1], poly.Coeffs[2], poly.Coeffs[3], poly.Coeffs[4])
		default:
			fmt.Printf("  calibration scheme %s not recognised\n", p.Curtx)
		}
		if p.Unit != "" {
			fmt.Printf("  unit: %s\n", p.Unit)
		}
	}
	return nil
}

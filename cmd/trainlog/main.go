// Copyright 2022 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// trainlog is the offline companion of the live logger: it inspects,
// converts and archives snapshot files without touching a training
// process.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/matrixorigin/trainlog/pkg/common/moerr"
	"github.com/matrixorigin/trainlog/pkg/config"
	"github.com/matrixorigin/trainlog/pkg/livelog"
	"github.com/matrixorigin/trainlog/pkg/logutil"
	"github.com/matrixorigin/trainlog/pkg/metricio"
	"github.com/matrixorigin/trainlog/pkg/runstore"
)

func usage() {
	fmt.Printf("Usage: %s <command> [options]\n", os.Args[0])
	fmt.Println("Commands:")
	fmt.Println("  inspect    <file>                print a snapshot summary")
	fmt.Println("  export     <file> <out.csv>      convert a snapshot to csv")
	fmt.Println("  import     <in.csv> <file>       convert csv back to a snapshot")
	fmt.Println("  export-all -store DIR -out DIR   export every archived run to csv")
	fmt.Println("  archive    -store DIR -run NAME <file>   append a snapshot to the archive")
	fmt.Println("  runs       -store DIR            list archived runs")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(-1)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "inspect":
		err = runInspect(args)
	case "export":
		err = runExport(args)
	case "import":
		err = runImport(args)
	case "export-all":
		err = runExportAll(args)
	case "archive":
		err = runArchive(args)
	case "runs":
		err = runRuns(args)
	default:
		usage()
		os.Exit(-1)
	}
	if err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(-1)
	}
}

// setup loads the optional toml file and brings the logger up before
// anything else runs.
func setup(configFile string) (*config.Config, error) {
	cfg := &config.Config{}
	if len(configFile) > 0 {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg.SetDefaults()
	}
	logutil.SetupMOLogger(&cfg.Log)
	cfg.Apply()
	return cfg, nil
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	configFile := fs.String("config", "", "toml configuration file")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return moerr.NewInvalidInput(context.TODO(), "inspect wants exactly one snapshot file")
	}
	if _, err := setup(*configFile); err != nil {
		return err
	}
	snap, err := metricio.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	printSummary(os.Stdout, fs.Arg(0), snap)
	return nil
}

func printSummary(w io.Writer, path string, snap *livelog.Snapshot) {
	fmt.Fprintf(w, "%s\n", path)
	fmt.Fprintf(w, "  train: %d batches, %d epochs\n", snap.NumTrainBatch, snap.NumTrainEpoch)
	fmt.Fprintf(w, "  test:  %d batches, %d epochs\n", snap.NumTestBatch, snap.NumTestEpoch)
	printGroup(w, "train", snap.TrainMetrics)
	printGroup(w, "test", snap.TestMetrics)
}

func printGroup(w io.Writer, group string, metrics map[string]livelog.MetricSnapshot) {
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ms := metrics[name]
		fmt.Fprintf(w, "  %s/%s: %d batch points, %d epoch points", group, name, len(ms.BatchData), len(ms.EpochData))
		if n := len(ms.BatchData); n > 0 {
			fmt.Fprintf(w, ", last batch %g", ms.BatchData[n-1])
		}
		if n := len(ms.EpochData); n > 0 {
			fmt.Fprintf(w, ", last epoch %g", ms.EpochData[n-1])
		}
		if ms.CountSinceEpoch > 0 {
			fmt.Fprintf(w, ", %d pending", ms.CountSinceEpoch)
		}
		fmt.Fprintln(w)
	}
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configFile := fs.String("config", "", "toml configuration file")
	_ = fs.Parse(args)
	if fs.NArg() != 2 {
		return moerr.NewInvalidInput(context.TODO(), "export wants a snapshot file and a csv path")
	}
	if _, err := setup(*configFile); err != nil {
		return err
	}
	snap, err := metricio.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	return metricio.ExportCSVFile(fs.Arg(1), snap)
}

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configFile := fs.String("config", "", "toml configuration file")
	_ = fs.Parse(args)
	if fs.NArg() != 2 {
		return moerr.NewInvalidInput(context.TODO(), "import wants a csv file and a snapshot path")
	}
	if _, err := setup(*configFile); err != nil {
		return err
	}
	snap, err := metricio.ImportCSVFile(context.Background(), fs.Arg(0))
	if err != nil {
		return err
	}
	return metricio.Save(fs.Arg(1), snap)
}

func runExportAll(args []string) error {
	fs := flag.NewFlagSet("export-all", flag.ExitOnError)
	configFile := fs.String("config", "", "toml configuration file")
	storePath := fs.String("store", "", "run archive directory")
	outDir := fs.String("out", "", "output directory for csv files")
	workers := fs.Int("workers", 0, "export pool size, 0 means one per cpu")
	_ = fs.Parse(args)

	cfg, err := setup(*configFile)
	if err != nil {
		return err
	}
	if len(*storePath) == 0 {
		*storePath = cfg.Store.Path
	}
	if len(*storePath) == 0 || len(*outDir) == 0 {
		return moerr.NewInvalidInput(context.TODO(), "export-all wants -store and -out")
	}
	if *workers == 0 {
		*workers = cfg.Export.Workers
	}

	store, err := runstore.Open(*storePath)
	if err != nil {
		return err
	}
	defer store.Close()
	return metricio.ExportAllCSV(context.Background(), store, *outDir, *workers)
}

func runArchive(args []string) error {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	configFile := fs.String("config", "", "toml configuration file")
	storePath := fs.String("store", "", "run archive directory")
	run := fs.String("run", "", "run name")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return moerr.NewInvalidInput(context.TODO(), "archive wants exactly one snapshot file")
	}

	cfg, err := setup(*configFile)
	if err != nil {
		return err
	}
	if len(*storePath) == 0 {
		*storePath = cfg.Store.Path
	}
	if len(*storePath) == 0 || len(*run) == 0 {
		return moerr.NewInvalidInput(context.TODO(), "archive wants -store and -run")
	}

	snap, err := metricio.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	store, err := runstore.Open(*storePath)
	if err != nil {
		return err
	}
	defer store.Close()
	seq, err := store.AppendCheckpoint(*run, snap)
	if err != nil {
		return err
	}
	fmt.Printf("archived %s as %s checkpoint %d\n", fs.Arg(0), *run, seq)
	return nil
}

func runRuns(args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	configFile := fs.String("config", "", "toml configuration file")
	storePath := fs.String("store", "", "run archive directory")
	_ = fs.Parse(args)

	cfg, err := setup(*configFile)
	if err != nil {
		return err
	}
	if len(*storePath) == 0 {
		*storePath = cfg.Store.Path
	}
	if len(*storePath) == 0 {
		return moerr.NewInvalidInput(context.TODO(), "runs wants -store")
	}

	store, err := runstore.Open(*storePath)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs()
	if err != nil {
		return err
	}
	for _, run := range runs {
		seqs, err := store.Checkpoints(run)
		if err != nil {
			return err
		}
		snap, err := store.Get(run)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d checkpoints, train %d/%d, test %d/%d\n", run, len(seqs),
			snap.NumTrainBatch, snap.NumTrainEpoch, snap.NumTestBatch, snap.NumTestEpoch)
	}
	return nil
}

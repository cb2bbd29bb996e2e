package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"

	"credit-scorer/internal/features"
	"credit-scorer/internal/storage"
)

var columns = []string{"SK_ID_CURR", "EXT_SOURCE_1", "EXT_SOURCE_2", "EXT_SOURCE_3", "AMT_CREDIT", "AMT_ANNUITY", "DAYS_BIRTH", "TARGET"}

// stump is a single-split tree over one feature.
type stump struct {
	feature   int
	threshold float64
	left      float64
	right     float64
}

var stumps = []stump{
	{feature: 0, threshold: 0.35, left: 0.9, right: -0.6},
	{feature: 1, threshold: 0.45, left: 0.7, right: -0.5},
	{feature: 2, threshold: 0.40, left: 0.8, right: -0.7},
	{feature: 3, threshold: 900000, left: -0.1, right: 0.2},
	{feature: 5, threshold: -12000, left: -0.2, right: 0.3},
}

func main() {
	var (
		outDir  = flag.String("out", "data", "Output directory")
		clients = flag.Int("clients", 500, "Number of clients to generate")
		seed    = flag.Int64("seed", 42, "Random seed")
		missing = flag.Float64("missing", 0.1, "Probability of a missing EXT_SOURCE cell")
		withDB  = flag.Bool("db", true, "Also write a BoltDB snapshot")
	)
	flag.Parse()

	fmt.Printf("Generating sample feature table...\n")
	fmt.Printf("  Clients: %d\n", *clients)
	fmt.Printf("  Seed: %d\n", *seed)
	fmt.Printf("  Output: %s\n", *outDir)

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}

	rng := rand.New(rand.NewSource(*seed))
	rows := generateClients(rng, *clients, *missing)

	csvPath := filepath.Join(*outDir, "application_test_subset.csv")
	if err := writeCSV(csvPath, rows); err != nil {
		log.Fatalf("Failed to write CSV: %v", err)
	}

	modelPath := filepath.Join(*outDir, "model.json")
	if err := writeModel(modelPath, rows); err != nil {
		log.Fatalf("Failed to write model: %v", err)
	}

	if *withDB {
		table, err := features.LoadCSV(csvPath)
		if err != nil {
			log.Fatalf("Failed to reload CSV: %v", err)
		}
		store, err := storage.New(filepath.Join(*outDir, "features.db"))
		if err != nil {
			log.Fatalf("Failed to create storage: %v", err)
		}
		defer store.Close()
		if err := store.SaveTable(table); err != nil {
			log.Fatalf("Failed to save snapshot: %v", err)
		}
	}

	fmt.Printf("✓ Generated %d clients and a %d-tree model\n", len(rows), len(stumps))
}

type client struct {
	id     int64
	values []float64 // feature columns only, NaN when missing
	target int
}

func generateClients(rng *rand.Rand, n int, missing float64) []client {
	out := make([]client, n)
	for i := range out {
		// A latent risk drives both the external scores and the label.
		risk := rng.Float64()
		ext := func() float64 {
			if rng.Float64() < missing {
				return math.NaN()
			}
			return clamp(1-risk+rng.NormFloat64()*0.15, 0, 1)
		}
		credit := math.Round(100000 + rng.Float64()*1900000)
		annuity := math.Round(credit * (0.03 + rng.Float64()*0.03))
		daysBirth := -float64(7000 + rng.Intn(18000))

		target := 0
		if rng.Float64() < risk*risk*0.35 {
			target = 1
		}

		out[i] = client{
			id:     int64(100001 + i),
			values: []float64{ext(), ext(), ext(), credit, annuity, daysBirth},
			target: target,
		}
	}
	return out
}

func writeCSV(path string, rows []client) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(columns); err != nil {
		return err
	}
	record := make([]string, len(columns))
	for _, r := range rows {
		record[0] = strconv.FormatInt(r.id, 10)
		for j, v := range r.values {
			record[j+1] = ""
			if !math.IsNaN(v) {
				record[j+1] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		record[len(record)-1] = strconv.Itoa(r.target)
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// writeModel emits a LightGBM dump_model() document whose leaf counts match
// the generated table. Missing values go right.
func writeModel(path string, rows []client) error {
	trees := make([]map[string]any, len(stumps))
	for i, s := range stumps {
		left := 0
		for _, r := range rows {
			if v := r.values[s.feature]; !math.IsNaN(v) && v <= s.threshold {
				left++
			}
		}
		trees[i] = map[string]any{
			"tree_index": i,
			"tree_structure": map[string]any{
				"split_feature": s.feature,
				"threshold":     s.threshold,
				"decision_type": "<=",
				"default_left":  false,
				"missing_type":  "NaN",
				"left_child":    map[string]any{"leaf_value": s.left, "leaf_count": left},
				"right_child":   map[string]any{"leaf_value": s.right, "leaf_count": len(rows) - left},
			},
		}
	}

	doc := map[string]any{
		"name":                   "tree",
		"version":                "v4",
		"num_class":              1,
		"num_tree_per_iteration": 1,
		"max_feature_idx":        len(columns) - 3,
		"objective":              "binary sigmoid:1",
		"average_output":         false,
		"feature_names":          columns[1 : len(columns)-1],
		"tree_info":              trees,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

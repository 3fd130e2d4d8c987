package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/go-kmeans/kmvector/pkg/dbscan"
	"github.com/go-kmeans/kmvector/pkg/kmeans"
	"github.com/go-kmeans/kmvector/pkg/ubindex"
	"github.com/go-kmeans/kmvector/pkg/vector"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "cluster":
		handleCluster(os.Args[2:])
	case "assign":
		handleAssign(os.Args[2:])
	case "dbscan":
		handleDBSCAN(os.Args[2:])
	case "nearby":
		handleNearby(os.Args[2:])
	case "knearest":
		handleKNearest(os.Args[2:])
	case "version":
		fmt.Printf("kmvector-cli version %s\n", version)
	case "help", "-h", "--help":
		showUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		showUsage()
		os.Exit(1)
	}
}

// loadVectors reads a vector array from path. Files ending in ".json" are
// decoded as a JSON array of {"Indexes":..., "Values":...} objects; every
// other extension is read as the binary array format pkg/vector writes
// (transparently gunzipped for ".gz").
func loadVectors(path string) ([]*vector.Vector, error) {
	if strings.HasSuffix(path, ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var raw []*vector.Vector
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return raw, nil
	}
	return vector.LoadBinaryArrayFile(path)
}

func parseVectorJSON(s string) (*vector.Vector, error) {
	v := new(vector.Vector)
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return nil, fmt.Errorf("parse vector: %w", err)
	}
	return v, nil
}

func handleCluster(args []string) {
	fs := flag.NewFlagSet("cluster", flag.ExitOnError)
	var (
		input      = fs.String("input", "", "path to input vector file (required)")
		k          = fs.Int("k", 0, "number of clusters (required)")
		numRuns    = fs.Int("runs", 1, "independent clustering runs")
		spherical  = fs.Bool("spherical", false, "use cosine-based spherical k-means")
		plusPlus   = fs.Bool("plusplus", true, "use k-means++ seeding")
		output     = fs.String("output", "", "path to write cluster labels as JSON (default: stdout)")
	)
	fs.Parse(args)

	if *input == "" || *k <= 0 {
		fmt.Println("Error: -input and -k are required")
		fs.Usage()
		os.Exit(1)
	}

	data, err := loadVectors(*input)
	if err != nil {
		fmt.Printf("Error loading vectors: %v\n", err)
		os.Exit(1)
	}

	cfg := kmeans.DefaultConfig()
	cfg.Spherical = *spherical
	cfg.PlusPlusInit = *plusPlus
	cfg.NumRuns = *numRuns

	result, err := kmeans.New(cfg).Cluster(data, *k, *numRuns)
	if err != nil {
		fmt.Printf("Error clustering: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("clusters=%d distortion=%.6f\n", len(result.Centroids), result.Distortion)
	writeLabels(result.Labels, *output)
}

func handleAssign(args []string) {
	fs := flag.NewFlagSet("assign", flag.ExitOnError)
	var (
		input     = fs.String("input", "", "path to input vector file (required)")
		centroids = fs.String("centroids", "", "path to centroid vector file (required)")
		spherical = fs.Bool("spherical", false, "use cosine-based spherical distance")
		output    = fs.String("output", "", "path to write labels as JSON (default: stdout)")
	)
	fs.Parse(args)

	if *input == "" || *centroids == "" {
		fmt.Println("Error: -input and -centroids are required")
		fs.Usage()
		os.Exit(1)
	}

	data, err := loadVectors(*input)
	if err != nil {
		fmt.Printf("Error loading vectors: %v\n", err)
		os.Exit(1)
	}
	cs, err := loadVectors(*centroids)
	if err != nil {
		fmt.Printf("Error loading centroids: %v\n", err)
		os.Exit(1)
	}

	cfg := kmeans.DefaultConfig()
	cfg.Spherical = *spherical

	labels, err := kmeans.New(cfg).GetClustering(data, cs)
	if err != nil {
		fmt.Printf("Error assigning: %v\n", err)
		os.Exit(1)
	}

	writeLabels(labels, *output)
}

func handleDBSCAN(args []string) {
	fs := flag.NewFlagSet("dbscan", flag.ExitOnError)
	var (
		input         = fs.String("input", "", "path to input vector file (required)")
		maxDistance   = fs.Float64("max-distance", 0.5, "neighborhood radius")
		minNumSamples = fs.Int("min-samples", 5, "minimum neighborhood size for a core point")
		method        = fs.String("distance", "euclidean", "distance method: euclidean or cosine")
		output        = fs.String("output", "", "path to write labels as JSON (default: stdout)")
	)
	fs.Parse(args)

	if *input == "" {
		fmt.Println("Error: -input is required")
		fs.Usage()
		os.Exit(1)
	}

	data, err := loadVectors(*input)
	if err != nil {
		fmt.Printf("Error loading vectors: %v\n", err)
		os.Exit(1)
	}

	var dm dbscan.DistanceMethod
	switch *method {
	case "euclidean":
		dm = dbscan.Euclidean
	case "cosine":
		dm = dbscan.Cosine
	default:
		fmt.Printf("Error: unknown distance method %q\n", *method)
		os.Exit(1)
	}

	cfg := dbscan.Config{
		MaxDistance:    float32(*maxDistance),
		MinNumSamples:  *minNumSamples,
		DistanceMethod: dm,
	}

	result, err := dbscan.New(cfg).Cluster(data)
	if err != nil {
		fmt.Printf("Error clustering: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("clusters=%d\n", len(result.ClusterSizes))
	writeLabels(result.Labels, *output)
}

func handleNearby(args []string) {
	fs := flag.NewFlagSet("nearby", flag.ExitOnError)
	var (
		input      = fs.String("input", "", "path to input vector file (required)")
		queryStr   = fs.String("query", "", "query vector as JSON (required)")
		lambda     = fs.Float64("lambda", 0, "minimum dot product (default: index's own minimum)")
		thresholds = fs.String("thresholds", "", "comma-separated ascending layer thresholds")
	)
	fs.Parse(args)

	if *input == "" || *queryStr == "" {
		fmt.Println("Error: -input and -query are required")
		fs.Usage()
		os.Exit(1)
	}

	idx := buildIndex(*input, *thresholds)
	q, err := parseVectorJSON(*queryStr)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	var ids []int64
	if *lambda > 0 {
		ids, err = idx.Nearby(q, float32(*lambda))
	} else {
		ids, err = idx.NearbyDefault(q)
	}
	if err != nil {
		fmt.Printf("Error querying: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("found %d candidates: %v\n", len(ids), ids)
}

func handleKNearest(args []string) {
	fs := flag.NewFlagSet("knearest", flag.ExitOnError)
	var (
		input      = fs.String("input", "", "path to input vector file (required)")
		queryStr   = fs.String("query", "", "query vector as JSON (required)")
		k          = fs.Int("k", 10, "number of results")
		lambdaMin  = fs.Float64("lambda-min", 0, "minimum dot product floor for candidates")
		thresholds = fs.String("thresholds", "", "comma-separated ascending layer thresholds")
	)
	fs.Parse(args)

	if *input == "" || *queryStr == "" {
		fmt.Println("Error: -input and -query are required")
		fs.Usage()
		os.Exit(1)
	}

	idx := buildIndex(*input, *thresholds)
	q, err := parseVectorJSON(*queryStr)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	results, err := idx.KNearest(q, *k, float32(*lambdaMin))
	if err != nil {
		fmt.Printf("Error querying: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Found %d results\n\n", len(results))
	for i, r := range results {
		fmt.Printf("Result %d: id=%d score=%.6f\n", i+1, r.ID, r.Score)
	}
}

func buildIndex(path, thresholdsCSV string) *ubindex.DotProductIndex {
	data, err := loadVectors(path)
	if err != nil {
		fmt.Printf("Error loading vectors: %v\n", err)
		os.Exit(1)
	}

	thresholds := []float32{0.9, 0.7, 0.5, 0.3}
	if thresholdsCSV != "" {
		parsed, err := parseThresholds(thresholdsCSV)
		if err != nil {
			fmt.Printf("Error parsing thresholds: %v\n", err)
			os.Exit(1)
		}
		thresholds = parsed
	}

	idx, err := ubindex.New(thresholds)
	if err != nil {
		fmt.Printf("Error creating index: %v\n", err)
		os.Exit(1)
	}
	if err := idx.Set(data); err != nil {
		fmt.Printf("Error populating index: %v\n", err)
		os.Exit(1)
	}
	return idx
}

func parseThresholds(csv string) ([]float32, error) {
	parts := strings.Split(csv, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%g", &f); err != nil {
			return nil, fmt.Errorf("invalid threshold %q: %w", p, err)
		}
		out = append(out, float32(f))
	}
	return out, nil
}

func writeLabels(labels []int, outputPath string) {
	data, err := json.Marshal(labels)
	if err != nil {
		fmt.Printf("Error encoding labels: %v\n", err)
		os.Exit(1)
	}

	if outputPath == "" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		fmt.Printf("Error writing %s: %v\n", outputPath, err)
		os.Exit(1)
	}
	fmt.Printf("wrote labels to %s\n", outputPath)
}

func showUsage() {
	fmt.Println(`kmvector CLI - drives the clustering library directly against a vector file, no server required

Usage:
  kmvector-cli <command> [options]

Commands:
  cluster    Run k-means/spherical k-means over an input vector file
  assign     Assign vectors to an existing set of centroids
  dbscan     Run density-based clustering over an input vector file
  nearby     Query the upper-bound dot product index for candidates above a threshold
  knearest   Query the upper-bound dot product index for the top-k matches
  version    Show version
  help       Show this help message

Vector files:
  Files ending in ".json" are decoded as a JSON array of
  {"Indexes": [...] | null, "Values": [...]} objects (null Indexes means
  dense). Any other extension is read as the binary vector-array format
  (gunzipped automatically when the path ends in ".gz").

Examples:

  # Cluster a dataset into 8 spherical clusters over 5 independent runs
  kmvector-cli cluster -input docs.json -k 8 -runs 5 -spherical

  # Assign new vectors to a previously computed set of centroids
  kmvector-cli assign -input new.json -centroids centroids.json

  # Run DBSCAN with cosine distance
  kmvector-cli dbscan -input docs.json -max-distance 0.3 -distance cosine

  # Query the nearest candidates to a sparse query vector
  kmvector-cli knearest -input docs.json -query '{"Indexes":[1,5],"Values":[1,1]}' -k 5

For more information, see SPEC_FULL.md and DESIGN.md.`)
}

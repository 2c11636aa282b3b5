// Command shp2grid imports present-day coastline shapefiles into the
// tracker. The geometry is converted to GeoJSON and, when a database is
// given, seeded into the response cache under the age-0 coastline key,
// so the first session needs no network for the modern coastline.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"fossiljourney/pkg/db"
	"fossiljourney/pkg/model"
	"fossiljourney/pkg/store"
)

func main() {
	inputPath := flag.String("input", "", "Path to input .shp file")
	outputPath := flag.String("output", "", "Path to output .geojson file (optional)")
	dbPath := flag.String("db", "", "Path to tracker database to seed (optional)")
	modelName := flag.String("model", string(model.ModelMuller2022), "Rotation model to seed under")
	flag.Parse()

	if *inputPath == "" || (*outputPath == "" && *dbPath == "") {
		flag.Usage()
		log.Fatal("Input path and at least one of -output or -db are required")
	}

	if err := run(*inputPath, *outputPath, *dbPath, *modelName); err != nil {
		log.Fatal(err)
	}
}

func run(inputPath, outputPath, dbPath, modelName string) error {
	m, err := model.ParseModel(modelName)
	if err != nil {
		return err
	}

	lines, err := readShapefile(inputPath)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return fmt.Errorf("shapefile %s contained no usable geometry", inputPath)
	}

	fc := geojson.NewFeatureCollection()
	feat := geojson.NewFeature(lines)
	feat.Properties["age_ma"] = 0
	feat.Properties["model"] = string(m)
	fc.Append(feat)

	data, err := json.Marshal(fc)
	if err != nil {
		return fmt.Errorf("failed to marshal GeoJSON: %w", err)
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, data, 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Printf("Wrote %d coastline segments to %s\n", len(lines), outputPath)
	}

	if dbPath != "" {
		if err := seedCache(dbPath, m, data); err != nil {
			return err
		}
		fmt.Printf("Seeded %d coastline segments into %s\n", len(lines), dbPath)
	}
	return nil
}

// seedCache stores the collection under the same cache key the fetcher
// uses for the age-0 coastline request.
func seedCache(dbPath string, m model.RotationModel, data []byte) error {
	dbConn, err := db.Init(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer dbConn.Close()
	st := store.NewSQLiteStore(dbConn)

	layer := model.LayerKey{AgeMa: 0, Model: m}
	key := "gplates/coastlines/" + layer.String()
	ctx := context.Background()
	if exists, err := st.HasCache(ctx, key); err == nil && exists {
		fmt.Printf("Replacing existing seed for %s\n", layer)
	}
	if err := st.SetCache(ctx, key, data); err != nil {
		return fmt.Errorf("failed to seed cache: %w", err)
	}
	return nil
}

func readShapefile(path string) (orb.MultiLineString, error) {
	shape, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shapefile: %w", err)
	}
	defer shape.Close()

	var lines orb.MultiLineString
	for shape.Next() {
		_, p := shape.Shape()

		switch s := p.(type) {
		case *shp.Null:
			continue
		case *shp.PolyLine:
			lines = append(lines, convertParts(s.NumParts, s.NumPoints, s.Parts, s.Points)...)
		case *shp.Polygon:
			// Polygon rings become outline segments.
			lines = append(lines, convertParts(s.NumParts, s.NumPoints, s.Parts, s.Points)...)
		default:
			log.Printf("Skipping unsupported shape type: %T", p)
		}
	}
	if err := shape.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shapes: %w", err)
	}
	return lines, nil
}

func convertParts(numParts, numPoints int32, parts []int32, points []shp.Point) []orb.LineString {
	var out []orb.LineString
	for i := 0; i < int(numParts); i++ {
		start := parts[i]
		end := numPoints
		if i < int(numParts)-1 {
			end = parts[i+1]
		}

		var line orb.LineString
		for j := start; j < end; j++ {
			line = append(line, orb.Point{points[j].X, points[j].Y})
		}
		out = append(out, line)
	}
	return out
}

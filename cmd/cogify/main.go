// SPDX-License-Identifier: MIT

// Tool for producing a Cloud-Optimized GeoTIFF from a painted scene.
// It renders a synthetic raster, streams it through a pyramid sink in
// concurrent strips, and optionally uploads the result to S3-compatible
// object storage.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/geotiled/cogsink"
	"github.com/geotiled/cogsink/gtiff"
)

func main() {
	ctx := context.Background()

	out := flag.String("out", "scene.tif", "path to output file being written")
	size := flag.Int("size", 4096, "edge length of the scene in pixels")
	block := flag.Int("block", 512, "tile size of the output file")
	tempdir := flag.String("temp", "", "directory for temporary level files; empty keeps them in memory")
	storagekey := flag.String("storage-key", "", "path to key with storage access credentials")
	bucket := flag.String("bucket", "cogify", "storage bucket for uploads")
	flag.Parse()

	var storage Storage
	if *storagekey != "" {
		var err error
		storage, err = NewStorage(*storagekey)
		if err != nil {
			log.Fatal(err)
		}
		bucketExists, err := storage.BucketExists(ctx, *bucket)
		if err != nil {
			log.Fatal(err)
		}
		if !bucketExists {
			log.Fatalf("storage bucket %q does not exist", *bucket)
		}
	}

	if err := build(*out, *size, *block, *tempdir); err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote %s", *out)

	if storage != nil {
		remotepath, err := upload(ctx, storage, *bucket, *out)
		if err != nil {
			log.Fatal(err)
		}
		if remotepath != "" {
			log.Printf("uploaded to storage: %s/%s", *bucket, remotepath)
		}
	}
}

// build paints the scene and streams it to path through a pyramid
// sink, one strip of rows per write, strips submitted concurrently.
func build(path string, size, block int, tempdir string) error {
	if size < 2 || size%stripRows != 0 {
		return fmt.Errorf("size %d must be a positive multiple of %d", size, stripRows)
	}

	scene := paintScene(size)
	info := cogsink.RasterInfo{
		Width: size, Height: size, Count: 1, DType: cogsink.Uint16,
		CRS:       "EPSG:3857",
		Transform: webMercatorTransform(size),
	}

	p, err := cogsink.NewPyramidSink(gtiff.Backend{}, info, path, cogsink.PyramidConfig{
		BlockSize: block,
		TempDir:   tempdir,
	})
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for y := 0; y < size; y += stripRows {
		y := y
		g.Go(func() error {
			b := lumaStrip(scene, y, y+stripRows)
			return p.Write(cogsink.Win(cogsink.Range(y, y+stripRows), cogsink.All()), b)
		})
	}
	if err := g.Wait(); err != nil {
		p.Close()
		return err
	}
	return p.Finalize()
}

// upload stores the finished file under public/<name>, skipping the
// transfer when an object of that name already exists. It returns the
// remote path, or empty when the upload was skipped.
func upload(ctx context.Context, s Storage, bucket, localpath string) (string, error) {
	remotepath := "public/" + filepath.Base(localpath)
	if _, err := s.Stat(ctx, bucket, remotepath); err == nil {
		log.Printf("already in storage: %s/%s", bucket, remotepath)
		return "", nil
	}
	if err := s.PutFile(ctx, bucket, remotepath, localpath, "image/tiff"); err != nil {
		return "", err
	}
	return remotepath, nil
}

// webMercatorTransform spreads the scene over the full Web Mercator
// extent, north-up.
func webMercatorTransform(size int) cogsink.Affine {
	const extent = 20037508.342789244
	res := 2 * extent / float64(size)
	return cogsink.Affine{res, 0, -extent, 0, -res, extent}
}

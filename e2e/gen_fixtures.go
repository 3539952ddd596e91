//go:build ignore

// gen_fixtures writes a small inbox for smoke-testing `imgpress batch` and
// `imgpress watch`: rasters in several formats, a metadata sidecar and one
// file that does not decode.
// Usage: go run gen_fixtures.go <output_dir>
package main

import (
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: gen_fixtures <output_dir>")
		os.Exit(1)
	}
	dir := os.Args[1]
	must(os.MkdirAll(filepath.Join(dir, "gallery"), 0o755))

	must(writeJPEG(filepath.Join(dir, "Hero Banner.jpg"), gradient(1600, 900)))
	must(writeSidecar(filepath.Join(dir, "Hero Banner.jpg.json"), map[string]any{
		"title":     "Hero banner",
		"creator":   "Fixture Studio",
		"keywords":  []string{"hero", "banner"},
		"copyright": "(c) Fixture Studio",
	}))

	// Same slug twice so the second publish takes a suffix.
	for i, name := range []string{"card.png", "Card.PNG"} {
		must(writePNG(filepath.Join(dir, "gallery", name), bordered(200, 150, uint8(60+i*80))))
	}
	must(writePNG(filepath.Join(dir, "logo.png"), alphaGradient(100, 100)))
	must(writeGIF(filepath.Join(dir, "badge.gif"), bordered(64, 64, 30)))

	must(os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("not an image"), 0o644))

	fmt.Fprintf(os.Stderr, "[gen_fixtures] created 6 images and 1 sidecar in %s\n", dir)
}

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func bordered(w, h int, base uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			c := color.NRGBA{R: base, G: base / 2, B: 255 - base, A: 255}
			if x < 4 || x >= w-4 || y < 4 || y >= h-4 {
				c = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func alphaGradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{R: 220, G: 60, B: 30, A: uint8(x * 255 / w)})
		}
	}
	return img
}

func writeJPEG(path string, img image.Image) error {
	return create(path, func(f *os.File) error { return jpeg.Encode(f, img, &jpeg.Options{Quality: 92}) })
}

func writePNG(path string, img image.Image) error {
	return create(path, func(f *os.File) error { return png.Encode(f, img) })
}

func writeGIF(path string, img image.Image) error {
	return create(path, func(f *os.File) error { return gif.Encode(f, img, nil) })
}

func writeSidecar(path string, fields map[string]any) error {
	data, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func create(path string, enc func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := enc(f); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

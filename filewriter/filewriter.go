// Copyright 2013 Dmitry Chestnykh. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package filewriter writes output files along with their precompressed
// siblings (name.gz, name.br).
package filewriter

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
)

// minhtml.yaml -> build.compress:
type CompressConfig struct {
	Methods    []string `mapstructure:"methods" yaml:"methods"`
	Extensions []string `mapstructure:"extensions" yaml:"extensions"`
}

type Compressor struct {
	Ext string
	New func(w io.Writer) io.WriteCloser
}

var gzipCompressor = &Compressor{
	Ext: "gz",
	New: func(w io.Writer) io.WriteCloser {
		z, err := gzip.NewWriterLevel(w, gzipLevel)
		if err != nil {
			panic(err.Error()) // shouldn't happen
		}
		return z
	},
}

var brotliCompressor = &Compressor{
	Ext: "br",
	New: func(w io.Writer) io.WriteCloser {
		return brotli.NewWriterLevel(w, brotliLevel)
	},
}

const (
	gzipLevel   = 9
	brotliLevel = 11
)

// Methods lists the accepted compression method names.
var Methods = []string{"gzip", "br"}

type FileWriter struct {
	compressedExtensions map[string]struct{}
	compressors          []*Compressor
}

func New(c *CompressConfig) (*FileWriter, error) {
	extensions := make(map[string]struct{})
	compressors := make([]*Compressor, 0)
	if c != nil {
		for _, v := range c.Extensions {
			extensions["."+strings.TrimPrefix(v, ".")] = struct{}{}
		}
		for _, v := range c.Methods {
			switch v {
			case "gzip":
				compressors = append(compressors, gzipCompressor)
			case "br":
				compressors = append(compressors, brotliCompressor)
			default:
				return nil, fmt.Errorf("unknown compression method: %q", v)
			}
		}
	}
	return &FileWriter{
		compressedExtensions: extensions,
		compressors:          compressors,
	}, nil
}

func (f *FileWriter) numberOfCompressors(ext string) int {
	if _, ok := f.compressedExtensions[ext]; ok {
		return len(f.compressors)
	}
	return 0
}

// Siblings returns the names of the compressed files written next to
// filename.
func (f *FileWriter) Siblings(filename string) []string {
	if f.numberOfCompressors(filepath.Ext(filename)) == 0 {
		return nil
	}
	names := make([]string, len(f.compressors))
	for i, c := range f.compressors {
		names[i] = filename + "." + c.Ext
	}
	return names
}

// create unlinks name and creates it anew. Copied files may be hard
// links to input files, which must not be written through.
func create(name string) (*os.File, error) {
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
}

func writeFile(filename string, data []byte) (err error) {
	out, err := create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(filename)
		}
	}()
	_, err = out.Write(data)
	return err
}

func compressData(c *Compressor, filename string, data []byte) (err error) {
	outfile := filename + "." + c.Ext
	out, err := create(outfile)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(outfile)
		}
	}()
	z := c.New(out)
	if _, err = z.Write(data); err != nil {
		z.Close()
		return err
	}
	return z.Close()
}

func (f *FileWriter) WriteFile(filename string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	nwriters := 1 + f.numberOfCompressors(filepath.Ext(filename))
	done := make(chan error, nwriters)
	go func() {
		done <- writeFile(filename, data)
	}()
	if nwriters > 1 {
		for _, c := range f.compressors {
			go func() {
				done <- compressData(c, filename, data)
			}()
		}
	}
	var lastErr error
	for i := 0; i < nwriters; i++ {
		err := <-done
		if err != nil && lastErr == nil {
			lastErr = err
		}
	}
	return lastErr
}

// WriteString is WriteFile for string content.
func (f *FileWriter) WriteString(filename string, s string) error {
	return f.WriteFile(filename, []byte(s))
}

func compressFile(c *Compressor, filename string) (err error) {
	in, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer in.Close()
	outfile := filename + "." + c.Ext
	out, err := create(outfile)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(outfile)
		}
	}()
	z := c.New(out)
	_, err = io.Copy(z, in)
	if err != nil {
		return err
	}
	return z.Close()
}

func copyFile(outfile, infile string) (err error) {
	// Remove old outfile, ignoring errors.
	os.Remove(outfile)

	// Try making hard link instead of copying.
	if err := os.Link(infile, outfile); err == nil {
		return nil // success
	}

	// Failed to create hard link, so try copying content.
	in, err := os.Open(infile)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(outfile)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(outfile)
		}
	}()
	_, err = io.Copy(out, in)
	return err
}

func (f *FileWriter) CopyFile(outfile, infile string) error {
	if err := os.MkdirAll(filepath.Dir(outfile), 0755); err != nil {
		return err
	}

	// Copy.
	if err := copyFile(outfile, infile); err != nil {
		return err
	}

	// Compress.
	n := f.numberOfCompressors(filepath.Ext(outfile))
	if n == 0 {
		return nil
	}
	done := make(chan error, n)
	for _, c := range f.compressors {
		go func() {
			done <- compressFile(c, outfile)
		}()
	}
	var lastErr error
	for i := 0; i < n; i++ {
		err := <-done
		if err != nil && lastErr == nil {
			lastErr = err
		}
	}
	return lastErr
}

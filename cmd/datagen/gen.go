package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	xrand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

type shardGenerator interface {
	describe()
	writeShard(dir, name string, index int) error
}

// writeAtomically produces a shard under a temporary name and renames it
// into place, so a concurrent watcher never observes a partially written
// shard under its final name.
func writeAtomically(dir, name string, write func(tmpPath string) error) error {
	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", name, uuid.NewString()[:8]))
	if err := write(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, filepath.Join(dir, name)); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// shardContentRng returns a deterministic byte stream unique to one shard.
func shardContentRng(seed uint64, index int) io.Reader {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[0:8], seed)
	binary.LittleEndian.PutUint64(key[8:16], uint64(index))
	return rand.NewChaCha8(key)
}

type byteShardGenerator struct {
	seed  uint64
	sizes []int64
}

func newByteShardGenerator(seed uint64, n int, xm int64, alpha float64) *byteShardGenerator {
	pareto := distuv.Pareto{
		Xm:    float64(xm),
		Alpha: alpha,
		Src:   xrand.NewSource(seed),
	}
	sizes := make([]int64, n)
	for i := range sizes {
		sizes[i] = int64(pareto.Rand())
	}
	return &byteShardGenerator{seed: seed, sizes: sizes}
}

func (g *byteShardGenerator) describe() {
	sorted := sortedCopy(g.sizes)
	fmt.Printf("    - Total size: %s\n", humanize.IBytes(uint64(sum(sorted))))
	fmt.Printf("    - Median size: %s\n", humanize.IBytes(uint64(sorted[len(sorted)/2])))
	fmt.Printf("    - Max size: %s\n", humanize.IBytes(uint64(sorted[len(sorted)-1])))
}

func (g *byteShardGenerator) writeShard(dir, name string, index int) error {
	rng := shardContentRng(g.seed, index)
	return writeAtomically(dir, name, func(tmp string) error {
		f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err != nil {
			return err
		}
		if _, err := io.CopyN(f, rng, g.sizes[index]); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
}

// clickRow mimics the shape of an ad click log: a binary label, a few
// integer counters and a few categorical features.
type clickRow struct {
	Label int32  `parquet:"name=label, type=INT32"`
	I1    int64  `parquet:"name=i1, type=INT64"`
	I2    int64  `parquet:"name=i2, type=INT64"`
	I3    int64  `parquet:"name=i3, type=INT64"`
	C1    string `parquet:"name=c1, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	C2    string `parquet:"name=c2, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	C3    string `parquet:"name=c3, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
}

type parquetShardGenerator struct {
	seed uint64
	rows []int64
}

func newParquetShardGenerator(seed uint64, n int, mu, sigma float64) *parquetShardGenerator {
	ln := &logNormal{mu: mu, sigma: sigma, src: rand.NewPCG(seed, 0)}
	rows := make([]int64, n)
	for i := range rows {
		rows[i] = int64(ln.Rand())
	}
	return &parquetShardGenerator{seed: seed, rows: rows}
}

func (g *parquetShardGenerator) describe() {
	sorted := sortedCopy(g.rows)
	fmt.Printf("    - Total rows: %s\n", humanize.Comma(sum(sorted)))
	fmt.Printf("    - Median rows: %s\n", humanize.Comma(sorted[len(sorted)/2]))
	fmt.Printf("    - Max rows: %s\n", humanize.Comma(sorted[len(sorted)-1]))
}

func (g *parquetShardGenerator) writeShard(dir, name string, index int) error {
	rng := rand.New(rand.NewPCG(g.seed, uint64(index)))
	return writeAtomically(dir, name, func(tmp string) error {
		fw, err := local.NewLocalFileWriter(tmp)
		if err != nil {
			return fmt.Errorf("creating file writer: %w", err)
		}
		pw, err := writer.NewParquetWriter(fw, new(clickRow), 2)
		if err != nil {
			fw.Close()
			return fmt.Errorf("creating parquet writer: %w", err)
		}
		pw.RowGroupSize = 16 * 1024 * 1024
		pw.CompressionType = parquet.CompressionCodec_SNAPPY

		for r := int64(0); r < g.rows[index]; r++ {
			row := clickRow{
				Label: int32(rng.IntN(2)),
				I1:    rng.Int64N(1 << 16),
				I2:    rng.Int64N(1 << 24),
				I3:    rng.Int64N(1 << 32),
				C1:    fmt.Sprintf("cat-%03d", rng.IntN(1000)),
				C2:    fmt.Sprintf("cat-%05d", rng.IntN(100000)),
				C3:    fmt.Sprintf("cat-%02d", rng.IntN(100)),
			}
			if err := pw.Write(row); err != nil {
				fw.Close()
				return fmt.Errorf("writing row: %w", err)
			}
		}
		if err := pw.WriteStop(); err != nil {
			fw.Close()
			return fmt.Errorf("finalizing parquet file: %w", err)
		}
		return fw.Close()
	})
}

type logNormal struct {
	mu    float64
	sigma float64
	src   rand.Source
}

func (ln *logNormal) Rand() float64 {
	var rnd float64
	if ln.src == nil {
		rnd = rand.NormFloat64()
	} else {
		rnd = rand.New(ln.src).NormFloat64()
	}
	return math.Exp(rnd*ln.sigma + ln.mu)
}

func sortedCopy(vals []int64) []int64 {
	out := make([]int64, len(vals))
	copy(out, vals)
	slices.Sort(out)
	return out
}

func sum(vals []int64) int64 {
	var total int64
	for _, v := range vals {
		total += v
	}
	return total
}

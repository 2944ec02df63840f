package main

import (
	"fmt"
	"image/color"
	"log"
	"math"
	"os"
	"text/tabwriter"

	"github.com/QimingZheng/tensor-compiler/tc-go/costmodel/feature"
	"github.com/QimingZheng/tensor-compiler/tc-go/costmodel/model"
	"github.com/QimingZheng/tensor-compiler/tc-golib/tclog"
	arg "github.com/alexflint/go-arg"
	humanize "github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

func fail(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	args := struct {
		Model      string `arg:"positional,required,help:model written by train-cost-model"`
		Dataset    string `arg:"positional,required,help:samples to predict (jsonl)"`
		Scatter    string `arg:"help:write a predicted vs measured scatter plot (png)"`
		Rank       bool   `arg:"help:list samples from cheapest to most expensive predicted cost"`
		MaxSamples int    `arg:"--max-samples"`
		CacheSize  int    `arg:"--cache-size"`
		Verbose    bool   `arg:"help:print every prediction"`
	}{
		CacheSize: 4096,
	}
	arg.MustParse(&args)

	logger := tclog.New(tclog.Options{Console: true})
	defer logger.Sync()

	m, err := model.Load(args.Model)
	fail(err)
	samples, err := feature.PrepareN(args.Dataset, args.MaxSamples)
	fail(err)
	fail(feature.CheckDims(samples, m.Config.ComputationFeatureDim, m.Config.LoopFeatureDim))
	logger.Info("loaded", zap.String("model", args.Model),
		zap.String("samples", humanize.Comma(int64(len(samples)))))

	predictor, err := model.NewPredictor(m, args.CacheSize)
	fail(err)

	measured := make([]float64, len(samples))
	for i, s := range samples {
		measured[i] = s.Label
	}

	if args.Rank {
		ranked, err := predictor.Rank(samples)
		fail(err)
		tw := tabwriter.NewWriter(os.Stdout, 4, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "rank\tline\tpredicted\tmeasured")
		for i, r := range ranked {
			fmt.Fprintf(tw, "%d\t%d\t%.4g\t%.4g\n", i+1, r.Sample.Line, r.Cost, r.Sample.Label)
		}
		fail(tw.Flush())
	}

	predicted, err := predictor.PredictAll(samples)
	fail(err)

	if args.Verbose {
		tw := tabwriter.NewWriter(os.Stdout, 4, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "line\tpredicted\tmeasured")
		for i, s := range samples {
			fmt.Fprintf(tw, "%d\t%.4g\t%.4g\n", s.Line, predicted[i], measured[i])
		}
		fail(tw.Flush())
	}

	summary, err := model.Summarize(predicted, measured)
	fail(err)
	fmt.Println(summary)

	if args.Scatter != "" {
		fail(scatter(args.Scatter, predicted, measured))
		logger.Info("wrote scatter plot", zap.String("path", args.Scatter))
	}
}

// scatter plots log predicted against log measured cost with the diagonal
// for reference.
func scatter(path string, predicted, measured []float64) error {
	p, err := plot.New()
	if err != nil {
		return err
	}
	p.Title.Text = "Predicted vs measured cost"
	p.X.Label.Text = "log measured"
	p.Y.Label.Text = "log predicted"

	pts := make(plotter.XYs, len(predicted))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := range predicted {
		pts[i].X = math.Log(measured[i])
		pts[i].Y = math.Log(predicted[i])
		lo = math.Min(lo, math.Min(pts[i].X, pts[i].Y))
		hi = math.Max(hi, math.Max(pts[i].X, pts[i].Y))
	}

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	sc.GlyphStyle.Color = color.RGBA{R: 20, G: 80, B: 200, A: 200}
	sc.GlyphStyle.Radius = vg.Points(2)
	p.Add(sc)
	p.Legend.Add("samples", sc)

	diag, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return err
	}
	diag.Color = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	diag.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	p.Add(diag)
	p.Legend.Add("exact", diag)
	p.Add(plotter.NewGrid())

	return p.Save(6*vg.Inch, 6*vg.Inch, path)
}

package train

import (
	"github.com/QimingZheng/tensor-compiler/tc-golib/errors"
	"github.com/QimingZheng/tensor-compiler/tc-golib/fileutil"
	chart "github.com/wcharczuk/go-chart"
)

// RenderLossChart plots the train and validation loss per epoch as a png.
func RenderLossChart(path string, losses []EpochLoss) (err error) {
	if len(losses) < 2 {
		return errors.Errorf("need at least two epochs to chart, got %d", len(losses))
	}

	epochs := make([]float64, len(losses))
	trainLoss := make([]float64, len(losses))
	valLoss := make([]float64, len(losses))
	for i, l := range losses {
		epochs[i] = float64(i + 1)
		trainLoss[i] = l.Train
		valLoss[i] = l.Val
	}

	graph := chart.Chart{
		Title:      "Cost model loss",
		TitleStyle: chart.StyleShow(),
		XAxis: chart.XAxis{
			Name:      "Epoch",
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
		},
		YAxis: chart.YAxis{
			Name:      "Loss",
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "train",
				XValues: epochs,
				YValues: trainLoss,
				Style: chart.Style{
					Show:        true,
					StrokeColor: chart.ColorBlue,
				},
			},
			chart.ContinuousSeries{
				Name:    "val",
				XValues: epochs,
				YValues: valLoss,
				Style: chart.Style{
					Show:            true,
					StrokeColor:     chart.ColorRed,
					StrokeDashArray: []float64{5.0, 5.0},
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{
		chart.Legend(&graph),
	}

	f, err := fileutil.NewBufferedWriter(path)
	if err != nil {
		return errors.Wrapf(err, "error creating %s", path)
	}
	defer errors.Defer(&err, f.Close)
	return errors.WrapfOrNil(graph.Render(chart.PNG, f), "error rendering %s", path)
}

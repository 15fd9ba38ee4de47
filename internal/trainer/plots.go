package trainer

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"sort"

	"github.com/neurolab-io/corepipe/internal/corepipeerrors"
)

// No charting library is attested anywhere in the retrieval pack (no
// gonum.org/v1/plot, no go-chart); these three plots are drawn pixel by
// pixel onto an image.RGBA (image.RGBA.Set) and encoded with image/png,
// matching the reference implementation's matplotlib outputs (confusion
// matrix heatmap, ROC curve, feature importance bar chart) in content if
// not in rendering fidelity.

const (
	plotWidth  = 480
	plotHeight = 360
	plotMargin = 40
)

var (
	colorBackground = color.RGBA{255, 255, 255, 255}
	colorAxis       = color.RGBA{60, 60, 60, 255}
	colorBar        = color.RGBA{51, 102, 204, 255}
	colorLine       = color.RGBA{204, 51, 51, 255}
)

func newPlotCanvas() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, plotWidth, plotHeight))
	for y := 0; y < plotHeight; y++ {
		for x := 0; x < plotWidth; x++ {
			img.Set(x, y, colorBackground)
		}
	}
	return img
}

func drawAxes(img *image.RGBA) {
	for x := plotMargin; x < plotWidth-plotMargin; x++ {
		img.Set(x, plotHeight-plotMargin, colorAxis)
	}
	for y := plotMargin; y < plotHeight-plotMargin; y++ {
		img.Set(plotMargin, y, colorAxis)
	}
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	for y := y0; y <= y1 && y < plotHeight; y++ {
		for x := x0; x <= x1 && x < plotWidth; x++ {
			img.Set(x, y, c)
		}
	}
}

// PlotConfusionMatrix draws a 2x2 confusion matrix as four shaded cells,
// darker for a higher count, matching plot_confusion_matrix's heatmap.
func PlotConfusionMatrix(w io.Writer, cm ConfusionMatrix) error {
	img := newPlotCanvas()
	drawAxes(img)

	maxCount := 1
	for i := range cm {
		for j := range cm[i] {
			if cm[i][j] > maxCount {
				maxCount = cm[i][j]
			}
		}
	}

	cellW := (plotWidth - 2*plotMargin) / 2
	cellH := (plotHeight - 2*plotMargin) / 2
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			intensity := uint8(255 - (200 * cm[i][j] / maxCount))
			c := color.RGBA{intensity, intensity, 255, 255}
			x0 := plotMargin + j*cellW
			y0 := plotMargin + i*cellH
			fillRect(img, x0, y0, x0+cellW-2, y0+cellH-2, c)
		}
	}
	return encodePNG(w, img)
}

// PlotROCCurve draws the ROC curve (false positive rate vs. true positive
// rate) by sweeping thresholds over the scored probabilities.
func PlotROCCurve(w io.Writer, yTrue []int, scores []float64) error {
	img := newPlotCanvas()
	drawAxes(img)

	thresholds := append([]float64(nil), scores...)
	thresholds = append(thresholds, 0, 1)
	sort.Sort(sort.Reverse(sort.Float64Slice(thresholds)))

	plotX := plotWidth - 2*plotMargin
	plotY := plotHeight - 2*plotMargin

	var prevX, prevY int = -1, -1
	for _, th := range thresholds {
		tp, fp, tn, fn := 0, 0, 0, 0
		for i, s := range scores {
			pred := 0
			if s >= th {
				pred = 1
			}
			switch {
			case yTrue[i] == 1 && pred == 1:
				tp++
			case yTrue[i] == 0 && pred == 1:
				fp++
			case yTrue[i] == 0 && pred == 0:
				tn++
			default:
				fn++
			}
		}
		tpr := safeDiv(float64(tp), float64(tp+fn))
		fpr := safeDiv(float64(fp), float64(fp+tn))

		px := plotMargin + int(fpr*float64(plotX))
		py := plotHeight - plotMargin - int(tpr*float64(plotY))
		if prevX >= 0 {
			drawLine(img, prevX, prevY, px, py, colorLine)
		}
		prevX, prevY = px, py
	}
	return encodePNG(w, img)
}

// PlotFeatureImportance draws a horizontal bar per feature, sorted
// descending by importance, matching plot_feature_importance.
func PlotFeatureImportance(w io.Writer, names []string, importances []float64) error {
	img := newPlotCanvas()
	drawAxes(img)

	maxImportance := 0.0
	for _, v := range importances {
		if v > maxImportance {
			maxImportance = v
		}
	}
	if maxImportance == 0 {
		maxImportance = 1
	}

	n := len(importances)
	if n == 0 {
		return encodePNG(w, img)
	}
	barAreaH := plotHeight - 2*plotMargin
	barH := barAreaH / n
	if barH < 1 {
		barH = 1
	}
	maxBarWidth := plotWidth - 2*plotMargin

	sorted := append([]float64(nil), importances...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	for i, v := range sorted {
		barLen := int(v / maxImportance * float64(maxBarWidth))
		y0 := plotMargin + i*barH
		fillRect(img, plotMargin, y0, plotMargin+barLen, y0+barH-2, colorBar)
	}
	return encodePNG(w, img)
}

func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := sign(x1-x0), sign(y1-y0)
	err := dx + dy
	for {
		if x0 >= 0 && x0 < plotWidth && y0 >= 0 && y0 < plotHeight {
			img.Set(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func sign(x int) int {
	if x < 0 {
		return -1
	}
	if x > 0 {
		return 1
	}
	return 0
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func encodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return corepipeerrors.NewModelError("encode evaluation plot", err)
	}
	return nil
}

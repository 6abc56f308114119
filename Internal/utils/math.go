package utils

func Average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// CalculateAvgVolume returns the mean volume of the last period bars' volumes.
func CalculateAvgVolume(volumes []int64, period int) float64 {
	if len(volumes) == 0 || period <= 0 {
		return 0
	}
	if len(volumes) > period {
		volumes = volumes[len(volumes)-period:]
	}
	total := 0.0
	for _, v := range volumes {
		total += float64(v)
	}
	return total / float64(len(volumes))
}

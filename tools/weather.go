package tools

// GetCurrentWeather returns a fixed demo payload for any location. There is
// no real lookup: no network call, no per-location variation.
func GetCurrentWeather(location string) (string, error) {
	return "The weather is 75°F and sunny.", nil
}

// Package travel provides the built-in travel-planning tools: a weather
// forecast lookup and a flight search. Both are offline fixtures returning
// deterministic data shaped like the real provider APIs, so runs are
// reproducible without network access or API keys. Results carry source
// attributions that the graph records as citations.
package travel

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/wanderplan/wanderplan/tool"
)

// Source identifiers used in citations.
const (
	WeatherSource = "weather-api"
	FlightsSource = "flights-api"
)

// Forecast is one day of a weather forecast.
type Forecast struct {
	Day           int    `json:"day"`
	Date          string `json:"date"`
	High          int    `json:"high"`
	Low           int    `json:"low"`
	Condition     string `json:"condition"`
	Precipitation int    `json:"precipitation_chance"`
}

// WeatherReport is the result of a weather lookup.
type WeatherReport struct {
	Location  string     `json:"location"`
	Condition string     `json:"condition"`
	Temp      int        `json:"temperature"`
	Humidity  int        `json:"humidity"`
	Forecast  []Forecast `json:"forecast"`
}

// FlightOption is one candidate flight.
type FlightOption struct {
	FlightNumber  string  `json:"flight_number"`
	Airline       string  `json:"airline"`
	Origin        string  `json:"origin"`
	Destination   string  `json:"destination"`
	DepartureDate string  `json:"departure_date"`
	DepartureTime string  `json:"departure_time"`
	ArrivalTime   string  `json:"arrival_time"`
	Duration      string  `json:"duration"`
	PriceUSD      float64 `json:"price_usd"`
	Stops         int     `json:"stops"`
	Baggage       bool    `json:"baggage_included"`
}

// FlightResults is the result of a flight search.
type FlightResults struct {
	Origin        string         `json:"origin"`
	Destination   string         `json:"destination"`
	DepartureDate string         `json:"departure_date"`
	Flights       []FlightOption `json:"flights"`
	BestPriceUSD  float64        `json:"best_price_usd"`
}

var conditions = []string{"Sunny", "Partly cloudy", "Cloudy", "Light rain"}

// NewWeatherTool returns the get_weather tool. The forecast is synthesized
// deterministically from the requested location and horizon.
func NewWeatherTool() tool.Tool {
	return tool.NewFunctionTool(
		"get_weather",
		"Get current weather and forecast for a location. Useful for travel planning.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"location": map[string]any{
					"type":        "string",
					"description": "Location to get weather for (city, country)",
				},
				"days": map[string]any{
					"type":        "integer",
					"description": "Number of days to forecast (1-10)",
				},
			},
			"required": []string{"location"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			location, _ := args["location"].(string)
			days := 7
			if d, ok := args["days"].(float64); ok {
				days = int(d)
			}
			if days < 1 {
				days = 1
			}
			if days > 10 {
				days = 10
			}

			report := WeatherReport{
				Location:  location,
				Condition: "Partly cloudy",
				Temp:      22,
				Humidity:  65,
				Forecast:  make([]Forecast, 0, days),
			}
			today := time.Now().UTC()
			for day := 0; day < days; day++ {
				precip := 20 + day*10
				if precip > 80 {
					precip = 80
				}
				report.Forecast = append(report.Forecast, Forecast{
					Day:           day + 1,
					Date:          today.AddDate(0, 0, day).Format("2006-01-02"),
					High:          25 + day%5,
					Low:           15 + day%3,
					Condition:     conditions[day%len(conditions)],
					Precipitation: precip,
				})
			}

			return tool.Result{
				Content: report,
				Sources: []tool.Source{{
					ID:      WeatherSource,
					Snippet: fmt.Sprintf("%d-day forecast for %s", days, location),
				}},
			}, nil
		},
	)
}

// NewFlightsTool returns the search_flights tool. It synthesizes three
// candidate flights per route; prices and flight numbers are derived from a
// hash of the route so repeated searches agree.
func NewFlightsTool() tool.Tool {
	return tool.NewFunctionTool(
		"search_flights",
		"Search for flights between two locations. Useful for travel planning and booking.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"origin": map[string]any{
					"type":        "string",
					"description": "Origin airport code",
				},
				"destination": map[string]any{
					"type":        "string",
					"description": "Destination airport code",
				},
				"departure_date": map[string]any{
					"type":        "string",
					"description": "Departure date in YYYY-MM-DD format",
				},
			},
			"required": []string{"origin", "destination", "departure_date"},
		},
		func(_ context.Context, args map[string]any) (any, error) {
			origin, _ := args["origin"].(string)
			destination, _ := args["destination"].(string)
			date, _ := args["departure_date"].(string)

			carriers := []struct{ code, name string }{
				{"AA", "American Airlines"},
				{"DL", "Delta"},
				{"UA", "United"},
			}
			seed := routeSeed(origin, destination)

			results := FlightResults{
				Origin:        origin,
				Destination:   destination,
				DepartureDate: date,
				Flights:       make([]FlightOption, 0, 3),
			}
			for i := 0; i < 3; i++ {
				carrier := carriers[(int(seed)+i)%len(carriers)]
				stops := 1
				if i == 0 {
					stops = 0
				}
				opt := FlightOption{
					FlightNumber:  fmt.Sprintf("%s%d", carrier.code, 100+(seed+uint32(i)*97)%900),
					Airline:       carrier.name,
					Origin:        origin,
					Destination:   destination,
					DepartureDate: date,
					DepartureTime: fmt.Sprintf("%02d:00", 8+i*4),
					ArrivalTime:   fmt.Sprintf("%02d:30", 12+i*4),
					Duration:      "4h 30m",
					PriceUSD:      float64(250 + i*50 + int(seed%100)),
					Stops:         stops,
					Baggage:       i == 0,
				}
				results.Flights = append(results.Flights, opt)
			}
			results.BestPriceUSD = results.Flights[0].PriceUSD
			for _, f := range results.Flights[1:] {
				if f.PriceUSD < results.BestPriceUSD {
					results.BestPriceUSD = f.PriceUSD
				}
			}

			return tool.Result{
				Content: results,
				Sources: []tool.Source{{
					ID:      FlightsSource,
					Snippet: fmt.Sprintf("%d flight options from %s to %s", len(results.Flights), origin, destination),
				}},
			}, nil
		},
	)
}

// Tools returns every built-in travel tool.
func Tools() []tool.Tool {
	return []tool.Tool{NewWeatherTool(), NewFlightsTool()}
}

// Register adds the built-in travel tools to the registry.
func Register(reg *tool.Registry) error {
	for _, t := range Tools() {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func routeSeed(origin, destination string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(origin))
	h.Write([]byte("->"))
	h.Write([]byte(destination))
	return h.Sum32()
}

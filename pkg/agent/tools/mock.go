package tools

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Product is one search hit.
type Product struct {
	Name   string  `json:"name"`
	Price  int     `json:"price"`
	Rating float64 `json:"rating"`
	Stock  int     `json:"stock"`
}

// ProductResults is the payload of search_products.
type ProductResults struct {
	Category string    `json:"category,omitempty"`
	Products []Product `json:"products"`
	Count    int       `json:"count"`
}

// Weather is the payload of get_weather.
type Weather struct {
	City        string `json:"city"`
	Temperature int    `json:"temperature"`
	Condition   string `json:"condition"`
	Humidity    int    `json:"humidity"`
}

// Profile is the payload of get_user_profile.
type Profile struct {
	UserID          string   `json:"user_id"`
	Name            string   `json:"name"`
	Preferences     []string `json:"preferences"`
	LoyaltyPoints   int      `json:"loyalty_points"`
	PurchaseHistory []string `json:"purchase_history"`
	MemberSince     string   `json:"member_since"`
}

// catalog is searched in order; the first category named in the query wins.
var catalog = []struct {
	category string
	products []Product
}{
	{"laptop", []Product{
		{Name: "MacBook Pro M3", Price: 1999, Rating: 4.8, Stock: 15},
		{Name: "Dell XPS 13", Price: 1299, Rating: 4.5, Stock: 8},
		{Name: "ThinkPad X1 Carbon", Price: 1599, Rating: 4.6, Stock: 12},
	}},
	{"phone", []Product{
		{Name: "iPhone 15 Pro", Price: 999, Rating: 4.7, Stock: 25},
		{Name: "Samsung Galaxy S24", Price: 899, Rating: 4.6, Stock: 18},
		{Name: "Google Pixel 8", Price: 699, Rating: 4.4, Stock: 20},
	}},
}

var forecasts = map[string]Weather{
	"london":   {Temperature: 15, Condition: "partly cloudy", Humidity: 65},
	"new york": {Temperature: 22, Condition: "sunny", Humidity: 45},
	"paris":    {Temperature: 18, Condition: "light rain", Humidity: 78},
	"tokyo":    {Temperature: 25, Condition: "clear", Humidity: 55},
}

// DefaultCity is used when no city can be found in the input.
const DefaultCity = "London"

// NewProductSearch returns the search_products tool over a fixed catalog.
// A query matching no category succeeds with an empty product list.
func NewProductSearch() Tool {
	return NewFunc(SearchProducts, func(_ context.Context, query string) (Result, error) {
		q := strings.ToLower(query)
		for _, c := range catalog {
			if strings.Contains(q, c.category) {
				return Ok(ProductResults{Category: c.category, Products: c.products, Count: len(c.products)})
			}
		}
		return Ok(ProductResults{Products: []Product{}})
	})
}

// NewWeather returns the get_weather tool. Unknown cities report London's
// conditions under the requested name.
func NewWeather() Tool {
	return NewFunc(GetWeather, func(_ context.Context, city string) (Result, error) {
		if city == "" {
			city = DefaultCity
		}
		w, ok := forecasts[strings.ToLower(city)]
		if !ok {
			w = forecasts["london"]
		}
		w.City = city
		return Ok(w)
	})
}

// NewUserProfile returns the get_user_profile tool.
func NewUserProfile() Tool {
	return NewFunc(GetUserProfile, func(_ context.Context, userID string) (Result, error) {
		if userID == "" {
			userID = "default"
		}
		return Ok(Profile{
			UserID:          userID,
			Name:            "John Doe",
			Preferences:     []string{"electronics", "books"},
			LoyaltyPoints:   1250,
			PurchaseHistory: []string{"MacBook Pro", "iPhone 14"},
			MemberSince:     "2023",
		})
	})
}

// NewNone returns the no-op tool used by actions that need no external call.
func NewNone() Tool {
	return NewFunc(None, func(_ context.Context, action string) (Result, error) {
		return Ok(map[string]string{"message": "Handled " + action})
	})
}

// ExtractCity returns the word following the first "in", "for" or "at",
// title-cased, or DefaultCity.
func ExtractCity(text string) string {
	words := strings.Fields(text)
	for i, w := range words {
		switch strings.ToLower(w) {
		case "in", "for", "at":
			if i+1 < len(words) {
				if city := titleCase(strings.TrimRight(words[i+1], "?!.,")); city != "" {
					return city
				}
			}
		}
	}
	return DefaultCity
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

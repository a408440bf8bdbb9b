// Package export renders labelled series as JSON or CSV.
//
// # Formats
//
// JSON wraps the datasets in a small metadata envelope:
//
//	{
//	  "metadata": {"exported_at": "2025-11-19T03:00:00Z", "dataset_count": 2, "version": "1.0"},
//	  "datasets": [
//	    {"label": "facebook/react", "points": [{"timestamp": 1369353600000, "value": 1}]},
//	    {"label": "facebook/react (forecast)", "points": [...]}
//	  ]
//	}
//
// CSV flattens every dataset into label,timestamp,date,value rows, where
// timestamp is Unix milliseconds and date is the UTC day (YYYY-MM-DD).
// Suitable for spreadsheets and pandas.
//
// # HTTP
//
// Write picks the format from a "format" query value and sets
// Content-Type and Content-Disposition so browsers download the file:
//
//	curl "http://localhost:8080/v1/repos/facebook/react/stars?format=csv" -o react.csv
package export

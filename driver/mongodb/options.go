// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mongodb

import (
	"math"
	"slices"

	"github.com/AlekSi/pointer"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"
)

// databaseOptions converts database options to MongoDB driver options.
func databaseOptions(l *zap.Logger, opts map[string]any) (*options.DatabaseOptions, error) {
	res := options.Database()

	var wc *writeconcern.WriteConcern

	keys := maps.Keys(opts)
	slices.Sort(keys)

	for _, k := range keys {
		v := opts[k]

		switch k {
		case "readPreference":
			rp, err := readPreference(v)
			if err != nil {
				return nil, err
			}

			res.SetReadPreference(rp)

		case "readConcern":
			level, ok := v.(string)
			if !ok || level == "" {
				return nil, badValue(k, v)
			}

			res.SetReadConcern(&readconcern.ReadConcern{Level: level})

		case "writeConcern":
			if wc == nil {
				wc = new(writeconcern.WriteConcern)
			}

			switch w := v.(type) {
			case string:
				if w == "" {
					return nil, badValue(k, v)
				}

				wc.W = w

			default:
				n, ok := toInt64(v)
				if !ok || n < 0 || n > math.MaxInt32 {
					return nil, badValue(k, v)
				}

				wc.W = int(n)
			}

		case "journal":
			j, ok := v.(bool)
			if !ok {
				return nil, badValue(k, v)
			}

			if wc == nil {
				wc = new(writeconcern.WriteConcern)
			}

			wc.Journal = pointer.ToBool(j)

		case "authSource", "directConnection":
			// used by connect

		default:
			l.Debug("Ignoring unknown database option", zap.String("option", k))
		}
	}

	if wc != nil {
		res.SetWriteConcern(wc)
	}

	return res, nil
}

// createCollectionOptions converts collection creation options to MongoDB driver options.
func createCollectionOptions(l *zap.Logger, opts map[string]any) (*options.CreateCollectionOptions, error) {
	res := options.CreateCollection()

	keys := maps.Keys(opts)
	slices.Sort(keys)

	for _, k := range keys {
		v := opts[k]

		switch k {
		case "capped":
			b, ok := v.(bool)
			if !ok {
				return nil, badValue(k, v)
			}

			res.SetCapped(b)

		case "size":
			n, ok := toInt64(v)
			if !ok || n <= 0 {
				return nil, badValue(k, v)
			}

			res.SetSizeInBytes(n)

		case "max":
			n, ok := toInt64(v)
			if !ok || n <= 0 {
				return nil, badValue(k, v)
			}

			res.SetMaxDocuments(n)

		default:
			l.Debug("Ignoring unknown collection option", zap.String("option", k))
		}
	}

	return res, nil
}

// readPreference converts read preference mode name.
func readPreference(v any) (*readpref.ReadPref, error) {
	s, ok := v.(string)
	if !ok {
		return nil, badValue("readPreference", v)
	}

	mode, err := readpref.ModeFromString(s)
	if err != nil {
		return nil, badValue("readPreference", v)
	}

	rp, err := readpref.New(mode)
	if err != nil {
		return nil, badValue("readPreference", v)
	}

	return rp, nil
}

// toInt64 converts integer-valued numbers to int64.
func toInt64(v any) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != math.Trunc(v) || v > math.MaxInt64 || v < math.MinInt64 {
			return 0, false
		}

		return int64(v), true
	default:
		return 0, false
	}
}

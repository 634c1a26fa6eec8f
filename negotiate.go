// Copyright 2026 The Dispatchkit Authors
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

package dispatch

import "strings"

// NegotiatedFormats is the per-request outcome of content negotiation.
type NegotiatedFormats struct {
	// ResponseType is the media type the response should use, empty when
	// the route declares no produces value.
	ResponseType string

	// RequestType is the media type the request body was accepted as: the
	// matched consumes entry, or the raw base content type when the route
	// declares no consumes.
	RequestType string
}

// acceptSpec is one parsed Accept header entry.
type acceptSpec struct {
	value   string
	quality int // thousandths, 0..1000
	order   int // declaration position, for stable ranking
}

// negotiate resolves both directions of content negotiation for a route.
func negotiate(c *Context, rt *Route) (NegotiatedFormats, *Error) {
	requestType, err := negotiateConsumes(c.ContentType(), rt.Consumes)
	if err != nil {
		return NegotiatedFormats{}, err
	}
	responseType, err := negotiateProduces(c.Request.Header.Get("Accept"), rt.Produces)
	if err != nil {
		return NegotiatedFormats{}, err
	}
	return NegotiatedFormats{ResponseType: responseType, RequestType: requestType}, nil
}

// negotiateConsumes matches the request's base content type against the
// route's consumes set. An empty set always passes and reports the raw
// base type. A match is exact equality, or a structured-syntax suffix
// match when the registered entry is a bare base type: a registered
// "application/json" accepts "application/vnd.custom+json".
func negotiateConsumes(contentType string, consumes []string) (string, *Error) {
	if len(consumes) == 0 {
		return contentType, nil
	}

	reqType, reqSubtype := splitMediaType(contentType)
	for _, registered := range consumes {
		regType, regSubtype := splitMediaType(registered)
		if regType == reqType && regSubtype == reqSubtype {
			return registered, nil
		}
		if regType == reqType && !strings.Contains(regSubtype, "+") &&
			strings.HasSuffix(reqSubtype, "+"+regSubtype) {
			return registered, nil
		}
	}
	return "", UnsupportedMediaType()
}

// negotiateProduces matches the route's declared produces value against the
// Accept header. A missing header is treated as */*. Entries are matched
// by specificity (exact beats type/* beats */*), then quality, then
// declaration order; a winning entry with q=0 is an explicit rejection.
func negotiateProduces(accept, produces string) (string, *Error) {
	if produces == "" {
		return "", nil
	}
	if accept == "" {
		return produces, nil
	}

	prodType, prodSubtype := splitMediaType(produces)

	best := acceptSpec{quality: -1}
	bestSpecificity := 0
	order := 0
	for _, part := range strings.Split(accept, ",") {
		spec, ok := parseAcceptPart(part, order)
		if !ok {
			continue
		}
		order++

		specType, specSubtype := splitMediaType(spec.value)
		var specificity int
		switch {
		case specType == prodType && specSubtype == prodSubtype:
			specificity = 3
		case specType == prodType && specSubtype == "*":
			specificity = 2
		case specType == "*" && specSubtype == "*":
			specificity = 1
		default:
			continue
		}

		if specificity > bestSpecificity ||
			(specificity == bestSpecificity && spec.quality > best.quality) {
			best = spec
			bestSpecificity = specificity
		}
	}

	if bestSpecificity == 0 || best.quality == 0 {
		return "", NotAcceptable()
	}
	return produces, nil
}

// parseAcceptPart parses a single Accept entry (between commas): a media
// range plus an optional q parameter. Unparsable entries are skipped.
func parseAcceptPart(part string, order int) (acceptSpec, bool) {
	spec := acceptSpec{quality: 1000, order: order}

	value := part
	if idx := strings.IndexByte(part, ';'); idx >= 0 {
		value = part[:idx]
		for _, param := range strings.Split(part[idx+1:], ";") {
			eq := strings.IndexByte(param, '=')
			if eq < 0 {
				continue
			}
			key := strings.TrimSpace(param[:eq])
			if key != "q" {
				continue
			}
			q := parseQuality(strings.TrimSpace(param[eq+1:]))
			if q >= 0 {
				spec.quality = q
			}
		}
	}

	spec.value = strings.TrimSpace(value)
	if spec.value == "" {
		return acceptSpec{}, false
	}
	return spec, true
}

// parseQuality parses an HTTP quality value into integer thousandths.
// Returns -1 on parse error. The grammar is constrained:
//
//	qvalue = ( "0" [ "." 0*3DIGIT ] ) / ( "1" [ "." 0*3("0") ] )
func parseQuality(s string) int {
	if len(s) == 0 || len(s) > 5 {
		return -1
	}

	if s[0] == '1' {
		if len(s) == 1 {
			return 1000
		}
		if len(s) < 3 || s[1] != '.' {
			return -1
		}
		for i := 2; i < len(s); i++ {
			if s[i] != '0' {
				return -1
			}
		}
		return 1000
	}

	if s[0] == '0' {
		if len(s) == 1 {
			return 0
		}
		if len(s) < 3 || s[1] != '.' {
			return -1
		}
		result := 0
		multiplier := 100
		for i := 2; i < len(s); i++ {
			if s[i] < '0' || s[i] > '9' {
				return -1
			}
			result += int(s[i]-'0') * multiplier
			multiplier /= 10
		}
		return result
	}

	return -1
}

// splitMediaType splits a media type into lowercased type and subtype,
// dropping parameters. A bare type gets a "*" subtype.
func splitMediaType(mediaType string) (string, string) {
	if idx := strings.IndexByte(mediaType, ';'); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	if slash := strings.IndexByte(mediaType, '/'); slash >= 0 {
		return mediaType[:slash], mediaType[slash+1:]
	}
	return mediaType, "*"
}

package clip

import "encoding/json"

func marshalForCompare(doc *Document) (string, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

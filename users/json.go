package users

import "encoding/json"

func jsonMarshal(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func jsonUnmarshal(s string, target interface{}) error {
	return json.Unmarshal([]byte(s), target)
}

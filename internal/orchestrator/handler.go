package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"
)

const (
	messageSuccess = "AWS Prefix Lists updated successfully."
	messageSkipped = "GitHub metadata unavailable; prefix lists left unchanged."
	messageFailure = "Internal Server Error"
)

type responseBody struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// Handler adapts an Orchestrator to a Lambda function.
type Handler struct {
	Orchestrator *Orchestrator
}

// Handle ignores the invocation event and reports the run as a status code and
// JSON body. Failures are reported in the response, never as a returned error.
func (h *Handler) Handle(ctx context.Context, event json.RawMessage) (events.APIGatewayProxyResponse, error) {
	report, err := h.Orchestrator.Run(ctx)
	switch {
	case err != nil:
		logrus.WithError(err).Error("Error updating AWS Prefix Lists")
		return respond(http.StatusInternalServerError, responseBody{Message: messageFailure, Error: err.Error()}), nil
	case report.Skipped:
		return respond(http.StatusOK, responseBody{Message: messageSkipped, Error: report.FetchError.Error()}), nil
	default:
		return respond(http.StatusOK, responseBody{Message: messageSuccess}), nil
	}
}

func respond(status int, body responseBody) events.APIGatewayProxyResponse {
	data, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(data),
	}
}

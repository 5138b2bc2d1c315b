package sns

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"ArxivIntel/internal/ports"
)

// PublishAPI is the slice of the SNS client the notifier needs.
type PublishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Notifier fans digest notices out through an SNS topic.
type Notifier struct {
	client   PublishAPI
	topicARN string
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier publishes to topicARN.
func NewNotifier(client PublishAPI, topicARN string) *Notifier {
	return &Notifier{client: client, topicARN: topicARN}
}

// PublishDigest sends the notice as the message body of a topic publication.
func (n *Notifier) PublishDigest(ctx context.Context, digest string) error {
	if n.client == nil || n.topicARN == "" {
		return errors.New("sns notifier misconfigured")
	}
	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String("ArXiv Intelligence Digest"),
		Message:  aws.String(digest),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

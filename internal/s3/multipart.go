package s3

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"ObjArchiver/internal/objstore"
)

func (c *Client) CreateMultipartUpload(ctx context.Context, bucket, key string, opts objstore.UploadOptions) (string, error) {
	input := &s3.CreateMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		Metadata: opts.Metadata,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	out, err := c.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", wrapError("CreateMultipartUpload", bucket, key, err)
	}
	if out.UploadId == nil || *out.UploadId == "" {
		return "", objstore.NewError("CreateMultipartUpload", bucket, key, nil, fmt.Errorf("empty upload id"))
	}
	return *out.UploadId, nil
}

func (c *Client) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int32, body []byte) (objstore.CompletedPart, error) {
	out, err := c.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(partNumber),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return objstore.CompletedPart{}, wrapError(fmt.Sprintf("UploadPart %d", partNumber), bucket, key, err)
	}
	return objstore.CompletedPart{
		PartNumber: partNumber,
		ETag:       aws.ToString(out.ETag),
		Size:       int64(len(body)),
	}, nil
}

func (c *Client) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []objstore.CompletedPart) error {
	completed := make([]types.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(p.PartNumber),
		})
	}
	_, err := c.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return wrapError("CompleteMultipartUpload", bucket, key, err)
	}
	return nil
}

func (c *Client) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	_, err := c.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return wrapError("AbortMultipartUpload", bucket, key, err)
	}
	return nil
}

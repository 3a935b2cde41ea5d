package azure

import (
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/mwantia/unifs/data"
)

// itemToFileStat converts a listed blob into a FileStat.
func itemToFileStat(item *container.BlobItem) *data.FileStat {
	key := deref(item.Name)
	props := item.Properties
	if props == nil {
		return data.NewFileStat(key, 0, time.Time{})
	}

	stat := data.NewFileStat(key, deref(props.ContentLength), deref(props.LastModified))
	if props.CreationTime != nil {
		stat.CreateTime = *props.CreationTime
	}
	if props.LastAccessedOn != nil {
		stat.AccessTime = *props.LastAccessedOn
	}
	stat.ContentType = deref(props.ContentType)
	if props.ETag != nil {
		stat.ETag = strings.Trim(string(*props.ETag), `"`)
	}

	return stat
}

// prefixToDirStat converts a listed virtual directory into a FileStat.
func prefixToDirStat(prefix *container.BlobPrefix) *data.FileStat {
	return data.NewDirStat(strings.TrimSuffix(deref(prefix.Name), data.Separator), time.Time{})
}

// propertiesToFileStat converts a GetProperties response into a FileStat.
func propertiesToFileStat(key string, props blob.GetPropertiesResponse) *data.FileStat {
	stat := data.NewFileStat(key, deref(props.ContentLength), deref(props.LastModified))
	if props.CreationTime != nil {
		stat.CreateTime = *props.CreationTime
	}
	if props.LastAccessed != nil {
		stat.AccessTime = *props.LastAccessed
	}
	stat.ContentType = deref(props.ContentType)
	if props.ETag != nil {
		stat.ETag = strings.Trim(string(*props.ETag), `"`)
	}

	return stat
}

func errCopyStatus(status blob.CopyStatusType) error {
	return fmt.Errorf("copy finished with status '%s'", status)
}

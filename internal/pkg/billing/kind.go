package billing

const subscriptionTypePlatform = "platform"

// SubscriptionKind is either PlatformKind or ClientKind. It is decided once
// from processor metadata and then drives a type switch in each handler.
type SubscriptionKind interface {
	subscriptionKind()
}

// PlatformKind is a photographer paying for platform access.
type PlatformKind struct {
	PhotographerID string
}

// ClientKind is a client paying for gallery storage. Either id may be empty
// when the processor object was not created through a gallery checkout.
type ClientKind struct {
	ClientID  string
	GalleryID string
}

func (PlatformKind) subscriptionKind() {}
func (ClientKind) subscriptionKind()   {}

// KindFromMetadata classifies a processor subscription by its metadata tag.
// Keys are read camelCase first, then snake_case.
func KindFromMetadata(metadata map[string]string) SubscriptionKind {
	if metaValue(metadata, "subscriptionType", "subscription_type") == subscriptionTypePlatform {
		return PlatformKind{PhotographerID: metaValue(metadata, "photographerId", "photographer_id")}
	}
	return ClientKind{
		ClientID:  metaValue(metadata, "clientId", "client_id"),
		GalleryID: metaValue(metadata, "galleryId", "gallery_id"),
	}
}

// CanCreate reports whether a new subscription row may be inserted for this client.
func (k ClientKind) CanCreate() bool {
	return k.ClientID != "" && k.GalleryID != ""
}
